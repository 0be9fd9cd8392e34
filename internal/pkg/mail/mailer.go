package mail

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/go-gomail/gomail"
	"github.com/rs/zerolog"

	"github.com/nomadaapp/nomada/internal/pkg/env"
)

var errNotConfigured = errors.New("smtp is not configured")

type Message struct {
	HTMLBody string
	TextBody string
	Subject  string
	Email    string
	Name     string
}

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

func smtpDialer(smtpURL, user, pass string) (*gomail.Dialer, error) {
	surl, err := url.Parse(smtpURL)
	if err != nil {
		return nil, err
	}

	var port int
	if i, err := strconv.Atoi(surl.Port()); err == nil {
		port = i
	} else if surl.Scheme == "smtp" {
		port = 25
	} else {
		port = 465
	}

	d := gomail.NewDialer(surl.Hostname(), port, user, pass)
	if surl.Scheme == "smtps" {
		d.SSL = true
	}
	return d, nil
}

// SMTPMailer delivers through an SMTP relay, e.g. smtps://smtp.gmail.com:465.
type SMTPMailer struct {
	Sender     string
	SenderName string
	log        zerolog.Logger
	send       func(m *gomail.Message) error
}

func NewSMTPMailer(smtpURL, username, password, sender string, log zerolog.Logger) (*SMTPMailer, error) {
	if smtpURL == "" {
		return nil, errNotConfigured
	}
	if sender == "" {
		return nil, errors.New("sender is empty")
	}
	dialer, err := smtpDialer(smtpURL, username, password)
	if err != nil {
		return nil, err
	}
	return &SMTPMailer{
		Sender:     sender,
		SenderName: "Nómada",
		log:        log.With().Str("smtp_host", dialer.Host).Int("smtp_port", dialer.Port).Logger(),
		send:       func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}, nil
}

func (sm *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if len(msg.Email) == 0 {
		return errors.New("email is empty")
	}

	m := gomail.NewMessage()
	if msg.Name != "" {
		m.SetAddressHeader("To", msg.Email, msg.Name)
	} else {
		m.SetHeader("To", msg.Email)
	}
	m.SetAddressHeader("From", sm.Sender, sm.SenderName)
	m.SetHeader("Subject", msg.Subject)

	hasBody := false
	if len(msg.TextBody) > 0 {
		m.SetBody("text/plain", msg.TextBody)
		hasBody = true
	}
	if len(msg.HTMLBody) > 0 {
		if hasBody {
			m.AddAlternative("text/html", msg.HTMLBody)
		} else {
			m.SetBody("text/html", msg.HTMLBody)
		}
		hasBody = true
	}
	if !hasBody {
		return errors.New("no email body was generated")
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sm.send(m); err != nil {
		sm.log.Error().Err(err).Str("to", msg.Email).Msg("failed to send email")
		return err
	}
	sm.log.Debug().Str("to", msg.Email).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// NopMailer drops every message. Used when SMTP is not configured.
type NopMailer struct {
	log zerolog.Logger
}

func NewNopMailer(log zerolog.Logger) NopMailer {
	return NopMailer{log: log}
}

func (n NopMailer) Send(_ context.Context, msg *Message) error {
	n.log.Warn().Str("to", msg.Email).Str("subject", msg.Subject).Msg("smtp not configured, email not sent")
	return errNotConfigured
}

// NewMailerFromEnv reads SMTP_URL, SMTP_USERNAME, SMTP_PASSWORD and
// SMTP_SENDER. Without SMTP_URL it returns a NopMailer.
func NewMailerFromEnv(log zerolog.Logger) Mailer {
	m, err := NewSMTPMailer(
		env.GetEnv("SMTP_URL", ""),
		env.GetEnv("SMTP_USERNAME", ""),
		env.GetEnv("SMTP_PASSWORD", ""),
		env.GetEnv("SMTP_SENDER", ""),
		log,
	)
	if err != nil {
		log.Warn().Err(err).Msg("welcome emails are disabled")
		return NewNopMailer(log)
	}
	return m
}

// IsNotConfigured reports whether err comes from a NopMailer.
func IsNotConfigured(err error) bool {
	return errors.Is(err, errNotConfigured)
}
