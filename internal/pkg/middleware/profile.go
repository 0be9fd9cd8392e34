package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	ProfileCookie = "nomada_profile"
	// ProfileHeader carries a profile id the page keeps in its own storage.
	// It works where third-party cookies are blocked or CORS runs without
	// credentials.
	ProfileHeader = "X-Nomada-Profile"

	profileLocal  = "PROFILE_ID"
	profileMaxAge = 365 * 24 * time.Hour
)

type ProfileConfig struct {
	// Secure marks the cookie Secure.
	Secure bool
	// CrossSite issues a SameSite=None cookie so a page on another site
	// sends it back on credentialed requests. Implies Secure.
	CrossSite bool
}

// ProfileMiddleware identifies the browser profile behind a request. The id
// replaces browser-local storage as the key of the visit session marker. A
// valid ProfileHeader wins over the cookie, and a missing or invalid id gets
// a fresh one. The id is echoed in ProfileHeader on every response.
func ProfileMiddleware(config ...ProfileConfig) fiber.Handler {
	var cfg ProfileConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	sameSite := fiber.CookieSameSiteLaxMode
	if cfg.CrossSite {
		sameSite = fiber.CookieSameSiteNoneMode
		cfg.Secure = true
	}

	return func(c *fiber.Ctx) error {
		cookie := c.Cookies(ProfileCookie)
		id := c.Get(ProfileHeader)
		if !validProfile(id) {
			id = cookie
		}
		if !validProfile(id) {
			id = uuid.New().String()
		}

		if id != cookie {
			c.Cookie(&fiber.Cookie{
				Name:     ProfileCookie,
				Value:    id,
				Path:     "/",
				Expires:  time.Now().Add(profileMaxAge),
				HTTPOnly: true,
				Secure:   cfg.Secure,
				SameSite: sameSite,
			})
		}
		c.Set(ProfileHeader, id)
		c.Locals(profileLocal, id)
		return c.Next()
	}
}

func validProfile(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetProfileID returns the profile of the request, or "" outside the
// middleware.
func GetProfileID(c *fiber.Ctx) string {
	if id, ok := c.Locals(profileLocal).(string); ok {
		return id
	}
	return ""
}
