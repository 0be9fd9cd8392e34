package mail

import (
	"bytes"
	"text/template"
	"time"
)

const welcomeSubject = "¡Bienvenido a la comunidad Nómada!"

const welcomeHTMLTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #444;">
  <h1 style="color: #7FB3D5; text-align: center;">¡Bienvenido a Nómada!</h1>
  <p>Hola,</p>
  <p>Gracias por unirte a nuestra comunidad de viajeros. Estamos muy emocionados de tenerte con nosotros.</p>
  <p>Como early adopter, serás de los primeros en probar nuestra plataforma cuando esté disponible y recibirás actualizaciones exclusivas sobre nuestro lanzamiento.</p>
  <p>¡Prepárate para descubrir el mundo sin límites!</p>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{ .SiteURL }}" style="background: linear-gradient(to right, #7FB3D5, #F7CAC9); color: white; text-decoration: none; padding: 12px 25px; border-radius: 50px; font-weight: bold;">Visitar Nómada</a>
  </div>
  <p style="color: #777; font-size: 0.9em;">Si no te has registrado en Nómada, puedes ignorar este correo.</p>
  <p style="color: #999; font-size: 0.8em; text-align: center;">© {{ .CurrentYear }} Nómada</p>
</div>`

const welcomeTextTemplate = `¡Bienvenido a Nómada!

Gracias por unirte a nuestra comunidad de viajeros. Como early adopter, serás de los primeros en probar nuestra plataforma cuando esté disponible.

{{ .SiteURL }}

Si no te has registrado en Nómada, puedes ignorar este correo.
`

var (
	welcomeHTML = template.Must(template.New("HtmlBody").Parse(welcomeHTMLTemplate))
	welcomeText = template.Must(template.New("TextBody").Parse(welcomeTextTemplate))
)

// WelcomeMessage renders the waitlist welcome email for email.
func WelcomeMessage(email, siteURL string) (*Message, error) {
	data := struct {
		SiteURL     string
		CurrentYear int
	}{
		SiteURL:     siteURL,
		CurrentYear: time.Now().Year(),
	}

	var htmlBody bytes.Buffer
	if err := welcomeHTML.Execute(&htmlBody, data); err != nil {
		return nil, err
	}
	var textBody bytes.Buffer
	if err := welcomeText.Execute(&textBody, data); err != nil {
		return nil, err
	}

	return &Message{
		HTMLBody: htmlBody.String(),
		TextBody: textBody.String(),
		Subject:  welcomeSubject,
		Email:    email,
	}, nil
}
