package authsdk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabmail/pkg/slogx"
	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

var testSigningKey = []byte("test-signing-key")

// mintToken returns a signed JWT carrying claims. Signatures are never
// checked client side; a real token just keeps the fixtures honest.
func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	return token
}

func mintAccess(t *testing.T, sub, email string) string {
	t.Helper()
	return mintToken(t, jwt.MapClaims{"sub": sub, "email": email, "provider": ProviderEmail})
}

// newTestServer starts an httptest server for router.
func newTestServer(t *testing.T, router chi.Router) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) (*SDKClient, *tokenstore.Memory) {
	t.Helper()

	tokens := tokenstore.NewMemory()
	return NewSDKClient(baseURL, tokens, slogx.Discard()), tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeRefreshToken(t *testing.T, r *http.Request) string {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decoding refresh body: %v", err)
	}
	return body.RefreshToken
}

func bearerOf(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) < len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

// recordingNavigator stands in for the view layer's router.
type recordingNavigator struct {
	mu       sync.Mutex
	location string
	visits   []string
}

func (n *recordingNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = path
	n.visits = append(n.visits, path)
}

func (n *recordingNavigator) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) SessionEnded() {
	h.calls.Add(1)
}
