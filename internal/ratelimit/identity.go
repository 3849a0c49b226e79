package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/security"
)

// ClientIdentity derives the key a request is throttled under, first match
// wins: authenticated subject, presented API key, X-Forwarded-For's first
// hop, X-Real-IP, the peer socket, and finally a random per-request value
// so an unidentifiable request never shares a bucket with another.
func ClientIdentity(r *http.Request, claims *security.Claims) string {
	if claims != nil && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	if cred := security.ExtractCredential(r.Header); cred.Kind == security.CredentialAPIKey && cred.Value != "" {
		return "key:" + cred.Value
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return "ip:" + first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return "ip:" + realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	return "anon:" + uuid.New().String()
}
