package security

// CombinedAuthenticator routes a credential to the API-key or bearer path
// by its kind, returning one generic failure whenever the chosen path
// rejects, so a caller can never distinguish "bad key" from "bad token"
// from "no credential at all".
type CombinedAuthenticator struct {
	APIKey *APIKeyAuthenticator
	Bearer *BearerAuthenticator
}

// NewCombinedAuthenticator wires both authenticators; either may be nil to
// disable that path entirely.
func NewCombinedAuthenticator(apiKey *APIKeyAuthenticator, bearer *BearerAuthenticator) *CombinedAuthenticator {
	return &CombinedAuthenticator{APIKey: apiKey, Bearer: bearer}
}

func (c *CombinedAuthenticator) Authenticate(credential Credential) (Claims, error) {
	switch credential.Kind {
	case CredentialAPIKey:
		if c.APIKey != nil {
			return c.APIKey.Authenticate(credential)
		}
	case CredentialBearer:
		if c.Bearer != nil {
			return c.Bearer.Authenticate(credential)
		}
	}
	return Claims{}, authFailure()
}
