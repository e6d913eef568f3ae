package authsdk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Placeholders used when a token carries no usable identity claims.
const (
	UnknownUserID = "unknown"
	UnknownEmail  = "unknown@example.com"
)

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// IdentityFromToken decodes the claims of an access token without verifying
// its signature; verification is the backend's job.
//
// The token must have exactly three dot-separated segments and the middle
// one must decode to a JSON object, otherwise ErrMalformedToken is returned
// and no partial identity is produced. fallbackEmail, when non-empty, takes
// precedence over the token's claims.
func IdentityFromToken(token, fallbackEmail string) (User, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return User{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if claims == nil {
		return User{}, fmt.Errorf("%w: payload is not an object", ErrMalformedToken)
	}

	sub := stringClaim(claims, "sub")

	id := firstNonEmpty(sub, stringClaim(claims, "userId"), UnknownUserID)

	email := firstNonEmpty(fallbackEmail, stringClaim(claims, "email"))
	if email == "" && strings.Contains(sub, "@") {
		email = sub
	}
	if email == "" {
		email = UnknownEmail
	}

	name, _, _ := strings.Cut(email, "@")

	provider := firstNonEmpty(stringClaim(claims, "provider"), ProviderEmail)

	return User{
		ID:       id,
		Email:    email,
		Name:     name,
		Provider: provider,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
