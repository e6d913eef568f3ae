package authsdk

// ============================================================================
// Identity & Session State
// ============================================================================

// Provider values carried in the access token's "provider" claim.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User is the identity decoded from an access token.
type User struct {
	ID       string
	Email    string
	Name     string // local part of Email
	Provider string // ProviderEmail or ProviderGoogle
}

// State is the observable authentication state of a Session.
//
// Authenticated implies User != nil. Loading is true while the startup check
// or an explicit login/register/Google exchange is in flight.
type State struct {
	User          *User
	Authenticated bool
	Loading       bool
	Error         string
}

// Equal reports whether two states carry the same values.
func (s State) Equal(o State) bool {
	if s.Authenticated != o.Authenticated || s.Loading != o.Loading || s.Error != o.Error {
		return false
	}
	if s.User == nil || o.User == nil {
		return s.User == o.User
	}
	return *s.User == *o.User
}

// ============================================================================
// Auth Endpoint Payloads
// ============================================================================

// TokenPair is returned by every /auth endpoint that mints credentials.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type googleExchangeRequest struct {
	IDToken string `json:"idToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// errorBody covers the error shapes the backend is known to return.
type errorBody struct {
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
