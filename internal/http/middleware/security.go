// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets conservative security headers on every response. HSTS is
// emitted only when enabled and the request arrived over TLS (directly or
// via X-Forwarded-Proto), so plain-HTTP dev setups are never poisoned with a
// long-lived HSTS pin.
package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS turns on Strict-Transport-Security for HTTPS requests.
	EnableHSTS bool
	// HSTSMaxAge is the max-age for the HSTS header.
	HSTSMaxAge time.Duration
	// NoStore marks all responses Cache-Control: no-store when true.
	NoStore bool
	// EnablePolicy adds Referrer-Policy and a restrictive Permissions-Policy.
	EnablePolicy bool
}

// SecurityHeaders returns a middleware applying the configured headers.
func SecurityHeaders(opts SecurityOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")

		if opts.NoStore {
			h.Set("Cache-Control", "no-store")
		}
		if opts.EnablePolicy {
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		}
		if opts.EnableHSTS && isTLS(c) && opts.HSTSMaxAge > 0 {
			h.Set("Strict-Transport-Security",
				fmt.Sprintf("max-age=%d; includeSubDomains", int64(opts.HSTSMaxAge.Seconds())))
		}

		c.Next()
	}
}

// isTLS reports whether the request arrived over TLS, honoring the
// X-Forwarded-Proto header set by terminating proxies.
func isTLS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
