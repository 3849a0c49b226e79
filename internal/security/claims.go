// Package security implements the pluggable authenticator, RBAC permission
// matcher, and credential-extraction order for the HTTP API: opaque API
// keys and HS256 bearer tokens behind one Authenticator interface, and a
// role -> permission matrix over Resource/Action/ResourceID triples.
package security

import (
	"net/http"
	"strings"

	"github.com/evalgo/memstore/internal/apperr"
)

// Role is one of the four fixed roles the store recognizes.
type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleTenantAdmin Role = "TenantAdmin"
	RoleUser        Role = "User"
	RoleReadOnly    Role = "ReadOnly"
)

// Claims is the verified identity + tenant + role a successful
// authentication carries forward through the request.
type Claims struct {
	Subject  string
	TenantID string
	Role     Role
}

// IsAdmin reports whether the claims short-circuit every permission check.
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Authenticator validates a credential extracted from a request and returns
// the resulting Claims.
type Authenticator interface {
	Authenticate(credential Credential) (Claims, error)
}

// CredentialKind distinguishes the two credential shapes a request can
// carry.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialAPIKey
	CredentialBearer
)

// Credential is whichever single credential ExtractCredential found, in
// fixed header-precedence order.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// ExtractCredential reads a credential from request headers in precedence
// order: `Authorization: ApiKey <k>` -> `Authorization: Bearer <jwt>` ->
// `X-API-Key: <k>`.
func ExtractCredential(h http.Header) Credential {
	if auth := h.Get("Authorization"); auth != "" {
		if key, ok := strings.CutPrefix(auth, "ApiKey "); ok {
			return Credential{Kind: CredentialAPIKey, Value: strings.TrimSpace(key)}
		}
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return Credential{Kind: CredentialBearer, Value: strings.TrimSpace(token)}
		}
	}
	if key := h.Get("X-API-Key"); key != "" {
		return Credential{Kind: CredentialAPIKey, Value: key}
	}
	return Credential{Kind: CredentialNone}
}

// genericAuthFailure is the single message every authentication failure
// returns. Authenticators never leak which layer rejected a credential -
// bad key, bad token, and no credential at all are indistinguishable to
// the caller.
const genericAuthFailure = "authentication failed"

func authFailure() error {
	return apperr.Authentication(genericAuthFailure)
}
