package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// SessionExpiredMessage is shown to the user after a terminal authentication
// failure.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// defaultErrorMessage is used when an error response carries no message.
const defaultErrorMessage = "request failed"

var (
	// ErrSessionExpired is returned when an access token was rejected and could
	// not be renewed. Tokens have been cleared by the time it is returned.
	ErrSessionExpired = errors.New("authsdk: session expired")

	// ErrNoAccessToken is returned when an identity is requested but no
	// access token is stored.
	ErrNoAccessToken = errors.New("authsdk: no access token")

	// ErrNoRefreshToken is returned by Renew when no refresh token is stored.
	// No network call is made.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token")

	// ErrSessionReset is returned when the session was reset (logout or a new
	// login) while the call was waiting on a renewal. Its result is discarded.
	ErrSessionReset = errors.New("authsdk: session reset during renewal")

	// ErrMalformedToken is returned when an access token cannot be decoded.
	ErrMalformedToken = fmt.Errorf("authsdk: %w", jwt.ErrTokenMalformed)
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface. The message is suitable for display.
func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// UserMessage returns the text to show for err: the backend message for API
// errors, the expiry notice for terminal auth failures, otherwise err.Error().
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrSessionExpired):
		return SessionExpiredMessage
	default:
		return err.Error()
	}
}

// parseErrorResponse builds an APIError from a non-2xx response body. The
// message is taken from "message", then "error", then "error_description".
func parseErrorResponse(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    defaultErrorMessage,
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}

	for _, msg := range []string{eb.Message, eb.Error, eb.ErrorDescription} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}

	return apiErr
}
