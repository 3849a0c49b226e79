package security

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/memstore/internal/apperr"
)

func TestExtractCredential(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    Credential
	}{
		{"api key scheme", map[string]string{"Authorization": "ApiKey abc123"}, Credential{Kind: CredentialAPIKey, Value: "abc123"}},
		{"bearer scheme", map[string]string{"Authorization": "Bearer xyz789"}, Credential{Kind: CredentialBearer, Value: "xyz789"}},
		{"x-api-key header", map[string]string{"X-API-Key": "def456"}, Credential{Kind: CredentialAPIKey, Value: "def456"}},
		{"none", map[string]string{}, Credential{Kind: CredentialNone}},
		{"authorization precedes x-api-key", map[string]string{"Authorization": "Bearer tok", "X-API-Key": "key"}, Credential{Kind: CredentialBearer, Value: "tok"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			got := ExtractCredential(h)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	auth := NewAPIKeyAuthenticator()
	auth.Register("key-1", "tenant-a", "svc-account", RoleUser)

	claims, err := auth.Authenticate(Credential{Kind: CredentialAPIKey, Value: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, RoleUser, claims.Role)

	_, err = auth.Authenticate(Credential{Kind: CredentialAPIKey, Value: "unknown"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	auth.Revoke("key-1")
	_, err = auth.Authenticate(Credential{Kind: CredentialAPIKey, Value: "key-1"})
	require.Error(t, err)
}

func TestAPIKeyAuthenticator_WrongCredentialKind(t *testing.T) {
	auth := NewAPIKeyAuthenticator()
	auth.Register("key-1", "tenant-a", "svc", RoleUser)
	_, err := auth.Authenticate(Credential{Kind: CredentialBearer, Value: "key-1"})
	require.Error(t, err)
}

func TestBearerAuthenticator_RoundTrip(t *testing.T) {
	auth := NewBearerAuthenticator([]byte("test-secret-key-material"), "memstore", "memstore-clients", time.Hour)
	token, err := auth.GenerateToken("user-1", "tenant-a", RoleUser)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.Authenticate(Credential{Kind: CredentialBearer, Value: token})
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestBearerAuthenticator_ExpiredToken(t *testing.T) {
	auth := NewBearerAuthenticator([]byte("test-secret-key-material"), "memstore", "memstore-clients", -time.Hour)
	token, err := auth.GenerateToken("user-1", "tenant-a", RoleUser)
	require.NoError(t, err)

	_, err = auth.Authenticate(Credential{Kind: CredentialBearer, Value: token})
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestBearerAuthenticator_WrongSecret(t *testing.T) {
	auth := NewBearerAuthenticator([]byte("test-secret-key-material"), "memstore", "memstore-clients", time.Hour)
	token, err := auth.GenerateToken("user-1", "tenant-a", RoleUser)
	require.NoError(t, err)

	other := NewBearerAuthenticator([]byte("a-completely-different-secret"), "memstore", "memstore-clients", time.Hour)
	_, err = other.Authenticate(Credential{Kind: CredentialBearer, Value: token})
	require.Error(t, err)
}

func TestBearerAuthenticator_WrongAudience(t *testing.T) {
	auth := NewBearerAuthenticator([]byte("test-secret-key-material"), "memstore", "memstore-clients", time.Hour)
	token, err := auth.GenerateToken("user-1", "tenant-a", RoleUser)
	require.NoError(t, err)

	other := NewBearerAuthenticator([]byte("test-secret-key-material"), "memstore", "someone-else", time.Hour)
	_, err = other.Authenticate(Credential{Kind: CredentialBearer, Value: token})
	require.Error(t, err)
}

func TestCombinedAuthenticator_FallsBackToBearer(t *testing.T) {
	apiKey := NewAPIKeyAuthenticator()
	bearer := NewBearerAuthenticator([]byte("test-secret-key-material"), "memstore", "memstore-clients", time.Hour)
	combined := NewCombinedAuthenticator(apiKey, bearer)

	token, err := bearer.GenerateToken("user-1", "tenant-a", RoleUser)
	require.NoError(t, err)

	claims, err := combined.Authenticate(Credential{Kind: CredentialBearer, Value: token})
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestCombinedAuthenticator_GenericFailure(t *testing.T) {
	combined := NewCombinedAuthenticator(NewAPIKeyAuthenticator(), NewBearerAuthenticator([]byte("secret-material-value"), "memstore", "memstore-clients", time.Hour))

	_, errBadKey := combined.Authenticate(Credential{Kind: CredentialAPIKey, Value: "nope"})
	_, errBadToken := combined.Authenticate(Credential{Kind: CredentialBearer, Value: "not-a-jwt"})
	_, errNone := combined.Authenticate(Credential{Kind: CredentialNone})

	require.Error(t, errBadKey)
	require.Error(t, errBadToken)
	require.Error(t, errNone)
	assert.Equal(t, errBadKey.Error(), errBadToken.Error())
	assert.Equal(t, errBadKey.Error(), errNone.Error())
}

func TestAuthorize_AdminShortCircuits(t *testing.T) {
	claims := Claims{Subject: "root", Role: RoleAdmin}
	assert.True(t, Authorize(claims, Permission{Resource: ResourceTenant, Action: ActionAdmin}))
}

func TestAuthorize_ReadOnlyCannotWrite(t *testing.T) {
	claims := Claims{Subject: "viewer", Role: RoleReadOnly}
	assert.True(t, Authorize(claims, Permission{Resource: ResourceMemory, Action: ActionRead}))
	assert.False(t, Authorize(claims, Permission{Resource: ResourceMemory, Action: ActionWrite}))
}

func TestAuthorize_UserCannotAdminTenant(t *testing.T) {
	claims := Claims{Subject: "user-1", Role: RoleUser}
	assert.False(t, Authorize(claims, Permission{Resource: ResourceTenant, Action: ActionAdmin}))
	assert.True(t, Authorize(claims, Permission{Resource: ResourceMemory, Action: ActionWrite}))
}

func TestAuthorize_TenantAdminWildcard(t *testing.T) {
	claims := Claims{Subject: "admin-1", Role: RoleTenantAdmin}
	assert.True(t, Authorize(claims, Permission{Resource: ResourceEntity, Action: ActionDelete}))
}

func TestPermission_ResourceIDScoping(t *testing.T) {
	granted := Permission{Resource: ResourceMemory, Action: ActionRead, ResourceID: "mem-1"}
	assert.True(t, granted.Matches(Permission{Resource: ResourceMemory, Action: ActionRead, ResourceID: "mem-1"}))
	assert.False(t, granted.Matches(Permission{Resource: ResourceMemory, Action: ActionRead, ResourceID: "mem-2"}))
}

func TestAPIKeyAuthenticator_HashedKey(t *testing.T) {
	auth := NewAPIKeyAuthenticator()
	hash, err := HashAPIKey("secret-key")
	require.NoError(t, err)
	auth.Register(hash, "tenant-a", "svc", RoleUser)

	claims, err := auth.Authenticate(Credential{Kind: CredentialAPIKey, Value: "secret-key"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", claims.TenantID)

	_, err = auth.Authenticate(Credential{Kind: CredentialAPIKey, Value: "wrong-key"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}
