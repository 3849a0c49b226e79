package security

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// BearerAuthenticator validates HS256-signed JWTs against a shared secret
// and expected issuer/audience. It also mints tokens: GenerateToken builds
// the claim set (sub, tenant_id, role, iss, aud, iat, nbf, exp, jti) and
// signs it with the same secret Authenticate verifies against.
type BearerAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewBearerAuthenticator builds an authenticator for tokens it also mints.
func NewBearerAuthenticator(secret []byte, issuer, audience string, ttl time.Duration) *BearerAuthenticator {
	return &BearerAuthenticator{secret: secret, issuer: issuer, audience: audience, ttl: ttl}
}

const (
	claimTenantID = "tenant_id"
	claimRole     = "role"
)

// GenerateToken mints a token carrying sub, tenant_id, role, iss, aud, iat,
// nbf and exp.
func (b *BearerAuthenticator) GenerateToken(subject, tenantID string, role Role) (string, error) {
	now := time.Now().UTC()
	builder := jwt.NewBuilder().
		Subject(subject).
		Issuer(b.issuer).
		Audience([]string{b.audience}).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(b.ttl)).
		JwtID(jti(subject, now)).
		Claim(claimTenantID, tenantID).
		Claim(claimRole, string(role))

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, b.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Authenticate validates signature, iss, aud and the nbf<=now<exp window,
// then extracts Claims. Any failure collapses to the generic authentication
// error; it never reports which check failed.
func (b *BearerAuthenticator) Authenticate(credential Credential) (Claims, error) {
	if credential.Kind != CredentialBearer || credential.Value == "" {
		return Claims{}, authFailure()
	}

	token, err := jwt.Parse(
		[]byte(credential.Value),
		jwt.WithKey(jwa.HS256, b.secret),
		jwt.WithIssuer(b.issuer),
		jwt.WithAudience(b.audience),
		jwt.WithValidate(true),
	)
	if err != nil {
		return Claims{}, authFailure()
	}

	tenantID, ok := token.Get(claimTenantID)
	if !ok {
		return Claims{}, authFailure()
	}
	tenantStr, ok := tenantID.(string)
	if !ok || tenantStr == "" {
		return Claims{}, authFailure()
	}

	roleVal, ok := token.Get(claimRole)
	if !ok {
		return Claims{}, authFailure()
	}
	roleStr, ok := roleVal.(string)
	if !ok {
		return Claims{}, authFailure()
	}

	return Claims{Subject: token.Subject(), TenantID: tenantStr, Role: Role(roleStr)}, nil
}

func jti(subject string, now time.Time) string {
	return fmt.Sprintf("%s-%d", subject, now.UnixNano())
}
