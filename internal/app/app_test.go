package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

const testPassword = "hunter2"

// fakeBackend is a minimal mail backend. Only the most recently issued
// access token is accepted.
type fakeBackend struct {
	t *testing.T

	mu         sync.Mutex
	access     string
	issued     int
	refreshOK  bool
	refreshes  int
	revoked    []string
	modified   []map[string][]string
	trashed    []string
	deleted    []string
	sent       []string
	threadHits int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{t: t, refreshOK: true}
}

func (b *fakeBackend) mint(email string) string {
	b.issued++
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "u1",
		"email":    email,
		"provider": authsdk.ProviderEmail,
		"n":        b.issued,
	}).SignedString([]byte("test-key"))
	assert.NoError(b.t, err)
	b.access = token
	return token
}

func (b *fakeBackend) revokeAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = ""
}

func (b *fakeBackend) router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.LoginRequest
		assert.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
			return
		}

		b.mu.Lock()
		access := b.mint(req.Email)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{
			"accessToken": access, "refreshToken": "r1", "email": req.Email,
		})
	})

	r.Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.refreshes++
		if !b.refreshOK {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token revoked"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"accessToken": b.mint("alice@example.com"), "refreshToken": "r2",
		})
	})

	r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		assert.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))

		b.mu.Lock()
		b.revoked = append(b.revoked, body.RefreshToken)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(b.requireBearer)

		r.Get("/labels", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"labels": []map[string]any{
				{"id": "INBOX", "name": "INBOX", "type": "system", "threadsTotal": 4, "threadsUnread": 2},
				{"id": "TRASH", "name": "TRASH", "type": "system"},
				{"id": "Label_1", "name": "receipts", "type": "user", "threadsTotal": 7},
			}})
		})

		r.Get("/labels/{id}/threads", func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]any{
				"threads":            []any{testThread("t1", "UNREAD", "STARRED")},
				"resultSizeEstimate": 1,
			}
			if r.URL.Query().Get("q") == "" {
				resp["nextPageToken"] = "p2"
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.threadHits++
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, testThread(chi.URLParam(r, "id"), "UNREAD"))
		})

		r.Post("/threads/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
			var body map[string][]string
			assert.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
			body["thread"] = []string{chi.URLParam(r, "id")}

			b.mu.Lock()
			b.modified = append(b.modified, body)
			b.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/threads/{id}/trash", func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.trashed = append(b.trashed, chi.URLParam(r, "id"))
			b.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Delete("/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.deleted = append(b.deleted, chi.URLParam(r, "id"))
			b.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/messages/send", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Raw string `json:"raw"`
			}
			assert.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
			raw, err := base64.URLEncoding.DecodeString(body.Raw)
			assert.NoError(b.t, err)

			b.mu.Lock()
			b.sent = append(b.sent, string(raw))
			n := len(b.sent)
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"id": fmt.Sprintf("m%d", 100+n), "threadId": "t1"})
		})
	})

	return r
}

func (b *fakeBackend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		ok := b.access != "" && r.Header.Get("Authorization") == "Bearer "+b.access
		b.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func testThread(id string, labels ...string) map[string]any {
	enc := base64.URLEncoding.EncodeToString
	return map[string]any{
		"id": id,
		"messages": []any{map[string]any{
			"id":           "m1",
			"threadId":     id,
			"labelIds":     append([]string{"INBOX"}, labels...),
			"snippet":      "Numbers attached",
			"internalDate": "1767225600000",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers": []map[string]string{
					{"name": "From", "value": `"Carol Finance" <carol@example.com>`},
					{"name": "To", "value": "alice@example.com"},
					{"name": "Subject", "value": "Quarterly report"},
					{"name": "Message-ID", "value": "<m1@example.com>"},
				},
				"body": map[string]any{"data": enc([]byte("Hi Alice,\n\nNumbers attached."))},
			},
		}},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakePrompter answers prompts without a terminal.
type fakePrompter struct {
	password string
	confirm  bool
}

func (p fakePrompter) Credentials(email string) (string, string, error) {
	if email == "" {
		email = "alice@example.com"
	}
	return email, p.password, nil
}

func (p fakePrompter) Registration(email, name string) (authsdk.RegisterRequest, error) {
	return authsdk.RegisterRequest{Email: email, Password: p.password, Name: name}, nil
}

func (p fakePrompter) Confirm(string) (bool, error) {
	return p.confirm, nil
}

func newTestApp(t *testing.T, backend *fakeBackend) (*Application, *bytes.Buffer) {
	t.Helper()

	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	app, err := New(Config{
		APIURL:       srv.URL,
		LogLevel:     "error",
		TokenBackend: BackendMemory,
		HTTPTimeout:  5 * time.Second,
		HistoryDB:    filepath.Join(t.TempDir(), "history.db"),
		HistoryLimit: 5,
	}, &out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown() })

	app.prompt = fakePrompter{password: testPassword, confirm: true}
	app.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return app, &out
}

func run(t *testing.T, app *Application, out *bytes.Buffer, args ...string) (string, error) {
	t.Helper()
	out.Reset()
	err := app.Run(context.Background(), args)
	return out.String(), err
}

func signIn(t *testing.T, app *Application, out *bytes.Buffer) {
	t.Helper()
	got, err := run(t, app, out, "login", "--email", "alice@example.com")
	require.NoError(t, err)
	require.Contains(t, got, "Signed in as alice@example.com")
}

func TestLoginAndBrowse(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	t.Run("whoami", func(t *testing.T) {
		got, err := run(t, app, out, "whoami")
		require.NoError(t, err)
		require.Contains(t, got, "alice@example.com")
		require.Contains(t, got, "u1")
		require.Contains(t, got, authsdk.ProviderEmail)
	})

	t.Run("mailboxes in sidebar order", func(t *testing.T) {
		got, err := run(t, app, out, "mailboxes")
		require.NoError(t, err)
		require.Contains(t, got, "2 unread")

		inbox := strings.Index(got, "Inbox")
		trash := strings.Index(got, "Trash")
		receipts := strings.Index(got, "receipts")
		require.True(t, inbox >= 0 && inbox < trash && trash < receipts, got)
	})

	t.Run("threads shows the next page", func(t *testing.T) {
		got, err := run(t, app, out, "threads", "inbox")
		require.NoError(t, err)
		require.Contains(t, got, "Carol Finance")
		require.Contains(t, got, "Quarterly report")
		require.Contains(t, got, "--page p2")
	})

	t.Run("show marks unread thread read", func(t *testing.T) {
		got, err := run(t, app, out, "show", "t1")
		require.NoError(t, err)
		require.Contains(t, got, "Numbers attached.")

		backend.mu.Lock()
		defer backend.mu.Unlock()
		require.NotEmpty(t, backend.modified)
		last := backend.modified[len(backend.modified)-1]
		require.Equal(t, []string{"UNREAD"}, last["removeLabelIds"])
	})
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	app.prompt = fakePrompter{password: "wrong"}

	_, err := run(t, app, out, "login")
	require.Error(t, err)
	require.Equal(t, "Invalid email or password", authsdk.UserMessage(err))

	st := app.session.State()
	require.False(t, st.Authenticated)
	require.Equal(t, "Invalid email or password", st.Error)
	require.False(t, app.tokens.Has(tokenstore.Access))

	got, err := run(t, app, out, "whoami")
	require.ErrorIs(t, err, ErrNotSignedIn)
	require.Equal(t, authsdk.LoginPath, app.nav.Location())
	require.Contains(t, got, "tabmail login")
}

func TestSessionExpiresDuringCommand(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	backend.revokeAccess()
	backend.mu.Lock()
	backend.refreshOK = false
	backend.mu.Unlock()

	got, err := run(t, app, out, "mailboxes")
	require.ErrorIs(t, err, authsdk.ErrSessionExpired)
	require.Equal(t, 1, strings.Count(got, authsdk.SessionExpiredMessage), got)
	require.Contains(t, got, "tabmail login")
	require.Equal(t, authsdk.LoginPath, app.nav.Location())

	require.False(t, app.tokens.Has(tokenstore.Access))
	require.False(t, app.tokens.Has(tokenstore.Refresh))
	require.False(t, app.session.State().Authenticated)
}

func TestRejectedTokenIsRenewedTransparently(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	// The backend forgets the access token; the refresh token still works.
	backend.revokeAccess()

	got, err := run(t, app, out, "mailboxes")
	require.NoError(t, err)
	require.Contains(t, got, "Inbox")

	refresh, ok := app.tokens.Get(tokenstore.Refresh)
	require.True(t, ok)
	require.Equal(t, "r2", refresh)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Equal(t, 1, backend.refreshes)
}

func TestStartupRestoresSessionFromRefreshToken(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	app.tokens.Set(tokenstore.Refresh, "r-stored", 0)

	got, err := run(t, app, out, "whoami")
	require.NoError(t, err)
	require.Contains(t, got, "alice@example.com")
	require.True(t, app.tokens.Has(tokenstore.Access))
}

func TestThreadsRecordsSearchHistory(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	_, err := run(t, app, out, "threads", "inbox", "--q", "from:carol")
	require.NoError(t, err)
	_, err = run(t, app, out, "threads", "INBOX", "-q", "report", "--preview")
	require.NoError(t, err)

	got, err := run(t, app, out, "history")
	require.NoError(t, err)
	require.Less(t, strings.Index(got, "report"), strings.Index(got, "from:carol"), got)

	backend.mu.Lock()
	require.Equal(t, 1, backend.threadHits, "preview loads each listed thread")
	backend.mu.Unlock()

	t.Run("remove and clear", func(t *testing.T) {
		_, err := run(t, app, out, "history", "--remove", "REPORT")
		require.NoError(t, err)
		got, err := run(t, app, out, "history")
		require.NoError(t, err)
		require.NotContains(t, got, "report")
		require.Contains(t, got, "from:carol")

		_, err = run(t, app, out, "history", "--clear")
		require.NoError(t, err)
		got, err = run(t, app, out, "history")
		require.NoError(t, err)
		require.Contains(t, got, "No recent searches.")
	})
}

func TestThreadActions(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	for _, args := range [][]string{
		{"star", "t1"}, {"unstar", "t1"}, {"read", "t1"}, {"unread", "t1"}, {"trash", "t2"},
	} {
		_, err := run(t, app, out, args...)
		require.NoError(t, err, args)
	}

	t.Run("delete asks first", func(t *testing.T) {
		app.prompt = fakePrompter{confirm: false}
		got, err := run(t, app, out, "delete", "t3")
		require.NoError(t, err)
		require.Contains(t, got, "Cancelled.")

		_, err = run(t, app, out, "delete", "t4", "--yes")
		require.NoError(t, err)
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := run(t, app, out, "star")
		require.Error(t, err)
	})

	backend.mu.Lock()
	defer backend.mu.Unlock()

	require.Len(t, backend.modified, 4)
	require.Equal(t, []string{"STARRED"}, backend.modified[0]["addLabelIds"])
	require.Equal(t, []string{"STARRED"}, backend.modified[1]["removeLabelIds"])
	require.Equal(t, []string{"UNREAD"}, backend.modified[2]["removeLabelIds"])
	require.Equal(t, []string{"UNREAD"}, backend.modified[3]["addLabelIds"])
	require.Equal(t, []string{"t2"}, backend.trashed)
	require.Equal(t, []string{"t4"}, backend.deleted)
}

func TestSendReplyForward(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	got, err := run(t, app, out, "send", "--to", "bob@example.com", "--subject", "Lunch", "--body", "Noon?")
	require.NoError(t, err)
	require.Contains(t, got, "Sent m101")

	_, err = run(t, app, out, "reply", "t1", "--body", "Thanks")
	require.NoError(t, err)

	_, err = run(t, app, out, "forward", "t1", "--to", "dave@example.com")
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.sent, 3)

	require.Contains(t, backend.sent[0], "Subject: Lunch")
	require.Contains(t, backend.sent[0], "alice@example.com")

	require.Contains(t, backend.sent[1], "Subject: Re: Quarterly report")
	require.Contains(t, backend.sent[1], "In-Reply-To: <m1@example.com>")
	require.Contains(t, backend.sent[1], "> Numbers attached.")

	require.Contains(t, backend.sent[2], "Subject: Fwd: Quarterly report")
	require.Contains(t, backend.sent[2], "---------- Forwarded message ---------")
	require.Contains(t, backend.sent[2], "dave@example.com")
}

func TestLogout(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	app, out := newTestApp(t, backend)
	signIn(t, app, out)

	got, err := run(t, app, out, "logout")
	require.NoError(t, err)
	require.Contains(t, got, "Signed out.")
	require.False(t, app.tokens.Has(tokenstore.Refresh))

	backend.mu.Lock()
	require.Equal(t, []string{"r1"}, backend.revoked)
	backend.mu.Unlock()

	_, err = run(t, app, out, "mailboxes")
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	app, out := newTestApp(t, newFakeBackend(t))

	got, err := run(t, app, out)
	require.NoError(t, err)
	require.Contains(t, got, "Usage: tabmail")
	require.Contains(t, got, "mailboxes")

	got, err = run(t, app, out, "frobnicate")
	require.ErrorContains(t, err, `unknown command "frobnicate"`)
	require.Contains(t, got, "Usage: tabmail")
}
