package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	// AllowedOrigins is added to connect-src so the browser client can
	// open its websocket back to us from another origin.
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets the browser security headers. The interview client
// captures camera and microphone locally, so the Permissions-Policy grants
// both to our own origin only.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	connectSrc := "'self' ws: wss:"
	if len(cfg.AllowedOrigins) > 0 {
		connectSrc += " " + strings.Join(cfg.AllowedOrigins, " ")
	}

	csp := "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: blob:; " +
		"media-src 'self' blob:; " +
		"connect-src " + connectSrc + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "camera=(self), microphone=(self), geolocation=()")
		c.Set("Content-Security-Policy", csp)

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}
