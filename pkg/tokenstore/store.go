// Package tokenstore persists the access/refresh token pair for a client
// session. Stores are synchronous and never surface backend failures to the
// caller: a broken backend degrades to "no token present".
package tokenstore

import "time"

// Kind identifies which half of the token pair an entry holds.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// Default lifetimes used when Set is called with a non-positive ttl.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Kinds lists every token kind a Store holds.
var Kinds = []Kind{Access, Refresh}

// Store holds at most one value per Kind. Set replaces the prior value in a
// single step, so readers observe either the old or the new token and never
// an absent one in between.
type Store interface {
	// Get returns the value and true, or "" and false when the entry is
	// missing, expired, or the backend is unavailable.
	Get(kind Kind) (string, bool)

	// Set stores value for kind. A ttl <= 0 uses DefaultTTL(kind).
	Set(kind Kind, value string, ttl time.Duration)

	// Clear removes the entry for kind. Missing entries are not an error.
	Clear(kind Kind)

	// ClearAll removes both entries.
	ClearAll()

	// Has reports whether Get would return a value.
	Has(kind Kind) bool
}

// DefaultTTL returns the default lifetime for kind.
func DefaultTTL(kind Kind) time.Duration {
	if kind == Refresh {
		return DefaultRefreshTTL
	}
	return DefaultAccessTTL
}

// Key returns the persisted entry name for kind.
func (k Kind) Key() string {
	return string(k) + "_token"
}

func effectiveTTL(kind Kind, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL(kind)
	}
	return ttl
}
