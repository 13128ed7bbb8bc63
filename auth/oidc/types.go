package oidc

// TokenSet is the token endpoint's success response.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope,omitempty"`
}

// tokenError is the OAuth2 error response body (RFC 6749 section 5.2).
type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Action selects a Keycloak application-initiated action.
type Action string

// ActionRegister opens Keycloak's registration form instead of the login form.
const ActionRegister Action = "register"

// AuthURLOption configures authorization URL generation.
type AuthURLOption func(*authURLOptions)

type authURLOptions struct {
	nonce     string
	action    Action
	loginHint string
	extra     map[string]string
}

// WithNonce adds the OIDC nonce parameter.
func WithNonce(nonce string) AuthURLOption {
	return func(o *authURLOptions) { o.nonce = nonce }
}

// WithAction adds kc_action, e.g. ActionRegister.
func WithAction(action Action) AuthURLOption {
	return func(o *authURLOptions) { o.action = action }
}

// WithLoginHint pre-fills the username/email field.
func WithLoginHint(hint string) AuthURLOption {
	return func(o *authURLOptions) { o.loginHint = hint }
}

// WithExtraParam adds a custom query parameter. Reserved parameters are not overridden.
func WithExtraParam(key, value string) AuthURLOption {
	return func(o *authURLOptions) {
		if o.extra == nil {
			o.extra = make(map[string]string)
		}
		o.extra[key] = value
	}
}
