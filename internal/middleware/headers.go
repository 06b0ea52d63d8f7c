package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// SecureHeaders sets the response security headers
type SecureHeaders struct {
	HSTSMaxAge            int
	ContentSecurityPolicy string
	XFrameOptions         string
	ReferrerPolicy        string

	// DevMode drops the CSP so local asset reloaders work
	DevMode bool
}

// DefaultSecureHeaders returns the production header set. The CSP admits
// the Bootstrap and Swagger UI CDN and websocket connections back to the
// same host.
func DefaultSecureHeaders() *SecureHeaders {
	return &SecureHeaders{
		HSTSMaxAge: 63072000,
		ContentSecurityPolicy: strings.Join([]string{
			"default-src 'self'",
			"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net",
			"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net",
			"img-src 'self' data:",
			"connect-src 'self' ws: wss:",
			"frame-ancestors 'none'",
			"form-action 'self'",
		}, "; "),
		XFrameOptions:  "DENY",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}
}

// Handler returns the middleware handler
func (sh *SecureHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		if sh.XFrameOptions != "" {
			h.Set("X-Frame-Options", sh.XFrameOptions)
		}
		if sh.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", sh.ReferrerPolicy)
		}
		if sh.ContentSecurityPolicy != "" && !sh.DevMode {
			h.Set("Content-Security-Policy", sh.ContentSecurityPolicy)
		}
		if sh.HSTSMaxAge > 0 && r.TLS != nil {
			h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", sh.HSTSMaxAge))
		}

		next.ServeHTTP(w, r)
	})
}
