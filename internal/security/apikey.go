package security

import (
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuthenticator validates a static, non-expiring key against a
// registry mapping key -> tenant, one registry serving every tenant the
// process hosts. Keys may be registered verbatim or as bcrypt hashes, so
// config files never have to carry a live credential.
type APIKeyAuthenticator struct {
	mu     sync.RWMutex
	keys   map[string]apiKeyEntry
	hashed []hashedKeyEntry
}

type apiKeyEntry struct {
	tenantID string
	subject  string
	role     Role
}

type hashedKeyEntry struct {
	hash  string
	entry apiKeyEntry
}

// NewAPIKeyAuthenticator builds an authenticator with no keys registered.
func NewAPIKeyAuthenticator() *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: make(map[string]apiKeyEntry)}
}

// HashAPIKey hashes a key for storage in configuration.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// isBcryptHash recognizes the modular-crypt prefix bcrypt emits.
func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Register associates a key with the tenant, subject and role a successful
// match should produce. A key in bcrypt modular-crypt form is treated as a
// hash and matched with a constant-time compare at authentication time;
// anything else is matched verbatim. Re-registering a plain key replaces
// its entry.
func (a *APIKeyAuthenticator) Register(key, tenantID, subject string, role Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry := apiKeyEntry{tenantID: tenantID, subject: subject, role: role}
	if isBcryptHash(key) {
		a.hashed = append(a.hashed, hashedKeyEntry{hash: key, entry: entry})
		return
	}
	a.keys[key] = entry
}

// Revoke removes a key so it no longer authenticates.
func (a *APIKeyAuthenticator) Revoke(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if isBcryptHash(key) {
		kept := make([]hashedKeyEntry, 0, len(a.hashed))
		for _, h := range a.hashed {
			if h.hash != key {
				kept = append(kept, h)
			}
		}
		a.hashed = kept
		return
	}
	delete(a.keys, key)
}

// Authenticate looks the key up verbatim, then compares it against every
// registered bcrypt hash; an unknown key is a generic authentication
// failure, never a "key not found" message.
func (a *APIKeyAuthenticator) Authenticate(credential Credential) (Claims, error) {
	if credential.Kind != CredentialAPIKey || credential.Value == "" {
		return Claims{}, authFailure()
	}
	a.mu.RLock()
	entry, ok := a.keys[credential.Value]
	hashed := a.hashed
	a.mu.RUnlock()
	if !ok {
		for _, h := range hashed {
			if bcrypt.CompareHashAndPassword([]byte(h.hash), []byte(credential.Value)) == nil {
				entry, ok = h.entry, true
				break
			}
		}
	}
	if !ok {
		return Claims{}, authFailure()
	}
	return Claims{Subject: entry.subject, TenantID: entry.tenantID, Role: entry.role}, nil
}
