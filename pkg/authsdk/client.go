package authsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/tabmail/pkg/slogx"
	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

// LoginPath is the login entry point the client navigates to after a
// terminal authentication failure.
const LoginPath = "/login"

// Navigator moves the user between entry points of the application.
type Navigator interface {
	Location() string
	Navigate(path string)
}

// SessionEndedHandler receives the process-wide "session ended" signal.
// Delivery may repeat; implementations must be idempotent.
type SessionEndedHandler interface {
	SessionEnded()
}

// SDKClient is a client for the mail backend. It owns the token pair, the
// renewal coordinator and the authenticated request gateway.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Limiter, when set, is waited on before every network attempt.
	Limiter *rate.Limiter

	// Navigator is told to go to LoginPath when the session ends. Optional.
	Navigator Navigator

	// Token lifetimes used when persisting; zero uses the store defaults.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	tokens  tokenstore.Store
	renewer *Renewer
	metrics *Metrics

	mu      sync.RWMutex
	onEnded SessionEndedHandler
}

// NewSDKClient creates a client for baseURL that persists credentials in
// tokens. A nil logger uses slog.Default().
func NewSDKClient(baseURL string, tokens tokenstore.Store, logger *slog.Logger) *SDKClient {
	if logger == nil {
		logger = slog.Default()
	}

	c := &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: slogx.NewTransport(nil, logger),
		},
		Logger: logger,
		tokens: tokens,
	}
	c.renewer = NewRenewer(tokens, c.Refresh, logger)

	return c
}

// Tokens returns the store holding the current token pair.
func (c *SDKClient) Tokens() tokenstore.Store {
	return c.tokens
}

// Renewer returns the coordinator shared by every call made through c.
func (c *SDKClient) Renewer() *Renewer {
	return c.renewer
}

// UseMetrics attaches counters to the gateway and renewer. Call it before
// the client is shared.
func (c *SDKClient) UseMetrics(m *Metrics) {
	c.metrics = m
	c.renewer.metrics = m
}

// OnSessionEnded sets the single subscriber of the "session ended" signal,
// replacing any previous one. Pass nil to detach.
func (c *SDKClient) OnSessionEnded(h SessionEndedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = h
}

func (c *SDKClient) sessionEndedHandler() SessionEndedHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onEnded
}

// storeTokens writes a pair into the token store. Only called with the
// renewer's lock held, see Renewer.Commit and Renewer.Replace.
func (c *SDKClient) storeTokens(access, refresh string) {
	c.tokens.Set(tokenstore.Access, access, c.AccessTTL)
	if refresh != "" {
		c.tokens.Set(tokenstore.Refresh, refresh, c.RefreshTTL)
	}
}
