package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

// Session is the process-wide authentication state of the application. It
// is created once at startup, injected into consumers and closed at
// teardown. Consumers observe it through State and Subscribe.
//
// All methods are safe for concurrent use.
type Session struct {
	client *SDKClient
	logger *slog.Logger

	mu    sync.Mutex
	state State
	// epoch advances on logout. Results of operations started in an earlier
	// epoch are discarded.
	epoch  uint64
	nextID int
	subs   []subscriber

	notifyMu sync.Mutex
}

type subscriber struct {
	id int
	fn func(State)
}

// NewSession creates a Session in the loading state and registers it as the
// client's session-ended handler.
func NewSession(client *SDKClient) *Session {
	s := &Session{
		client: client,
		logger: client.Logger,
		state:  State{Loading: true},
	}
	client.OnSessionEnded(s)
	return s
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to be called with the new state after every change.
// Calls happen outside the session lock, in subscription order. The returned
// func unsubscribes.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Close detaches the session from its client and drops all subscribers.
func (s *Session) Close() {
	s.client.mu.Lock()
	if s.client.onEnded == SessionEndedHandler(s) {
		s.client.onEnded = nil
	}
	s.client.mu.Unlock()

	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

// ============================================================================
// Startup
// ============================================================================

// Start runs the startup check and returns the resulting state.
//
// A decodable stored access token authenticates immediately. An undecodable
// one is cleared. Otherwise a stored refresh token is exchanged for a new
// pair; if that fails every token is cleared and the session is logged out.
func (s *Session) Start(ctx context.Context) State {
	s.mu.Lock()
	epoch := s.epoch
	s.state = State{Loading: true}
	s.mu.Unlock()
	s.publish()

	tokens := s.client.tokens

	if access, ok := tokens.Get(tokenstore.Access); ok {
		user, err := IdentityFromToken(access, "")
		if err == nil {
			return s.settle(epoch, State{User: &user, Authenticated: true})
		}
		s.logger.Warn("stored access token is unreadable, discarding", "error", err)
		tokens.Clear(tokenstore.Access)
	}

	if !tokens.Has(tokenstore.Refresh) {
		return s.settle(epoch, State{})
	}

	ren, err := s.client.renewer.Renew(ctx, "")
	if err != nil {
		s.logger.Info("stored session could not be renewed", "error", err)
		return s.settleLoggedOut(epoch)
	}

	user, err := IdentityFromToken(ren.AccessToken, ren.Email)
	if err != nil {
		s.logger.Error("renewed access token is unreadable", "error", err)
		return s.settleLoggedOut(epoch)
	}

	s.mu.Lock()
	if s.epoch == epoch && s.client.renewer.Commit(ren, s.client.storeTokens) {
		s.state = State{User: &user, Authenticated: true}
	}
	state := s.state
	s.mu.Unlock()
	s.publish()

	return state
}

// settle sets next if no logout happened since epoch.
func (s *Session) settle(epoch uint64, next State) State {
	s.mu.Lock()
	if s.epoch == epoch {
		s.state = next
	}
	state := s.state
	s.mu.Unlock()
	s.publish()

	return state
}

func (s *Session) settleLoggedOut(epoch uint64) State {
	s.mu.Lock()
	if s.epoch == epoch {
		s.client.renewer.Reset()
		s.client.tokens.ClearAll()
		s.state = State{}
	}
	state := s.state
	s.mu.Unlock()
	s.publish()

	return state
}

// ============================================================================
// Explicit Sign-in
// ============================================================================

// Login signs in with email and password.
func (s *Session) Login(ctx context.Context, email, password string) error {
	epoch := s.beginLoading()
	pair, err := s.client.Login(ctx, email, password)
	return s.finishSignIn(epoch, pair, email, err)
}

// Register creates an account and signs in with it.
func (s *Session) Register(ctx context.Context, req RegisterRequest) error {
	epoch := s.beginLoading()
	pair, err := s.client.Register(ctx, req)
	return s.finishSignIn(epoch, pair, req.Email, err)
}

// LoginWithGoogle exchanges a Google ID token. email, when known from the
// OAuth redirect, overrides the token's email claim.
func (s *Session) LoginWithGoogle(ctx context.Context, idToken, email string) error {
	epoch := s.beginLoading()
	pair, err := s.client.GoogleExchange(ctx, idToken)
	return s.finishSignIn(epoch, pair, email, err)
}

func (s *Session) beginLoading() uint64 {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.publish()

	return epoch
}

func (s *Session) finishSignIn(epoch uint64, pair *TokenPair, email string, err error) error {
	var user User
	if err == nil {
		if pair.Email != "" {
			email = pair.Email
		}
		user, err = IdentityFromToken(pair.AccessToken, email)
		if err != nil {
			// A well-behaved backend never returns this.
			s.logger.Error("access token from sign-in is unreadable", "error", err)
		}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrSessionReset
	}

	if err != nil {
		s.client.renewer.Replace(s.client.tokens.ClearAll)
		s.state = State{Error: UserMessage(err)}
	} else {
		s.client.renewer.Replace(func() {
			s.client.storeTokens(pair.AccessToken, pair.RefreshToken)
		})
		s.state = State{User: &user, Authenticated: true}
	}
	s.mu.Unlock()
	s.publish()

	return err
}

// ============================================================================
// Logout, Refresh & Expiry
// ============================================================================

// Logout clears the session immediately and then revokes the refresh token
// on the backend. The backend call is best effort: its failure is logged and
// Logout always succeeds. A renewal in flight cannot restore the session.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	refresh, _ := s.client.tokens.Get(tokenstore.Refresh)
	s.client.renewer.Reset()
	s.client.tokens.ClearAll()
	s.state = State{}
	s.mu.Unlock()
	s.publish()

	if refresh == "" {
		return
	}
	if err := s.client.Logout(ctx, refresh); err != nil {
		s.logger.Warn("backend logout failed", "error", err)
	}
}

// Refresh renews the access token ahead of need and updates the identity.
// A failed renewal ends the session the same way a rejected call does.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	stale, _ := s.client.tokens.Get(tokenstore.Access)

	ren, err := s.client.renewer.Renew(ctx, stale)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()), errors.Is(err, ErrSessionReset):
		return err
	default:
		s.client.endSession(ctx, ren, err)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	user, err := IdentityFromToken(ren.AccessToken, ren.Email)
	if err != nil {
		s.logger.Error("renewed access token is unreadable", "error", err)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch || !s.client.renewer.Commit(ren, s.client.storeTokens) {
		s.mu.Unlock()
		return ErrSessionReset
	}
	s.state = State{User: &user, Authenticated: true}
	s.mu.Unlock()
	s.publish()

	return nil
}

// SessionEnded implements SessionEndedHandler. Repeated delivery leaves the
// state unchanged and notifies no one.
func (s *Session) SessionEnded() {
	next := State{Error: SessionExpiredMessage}

	s.mu.Lock()
	if s.state.Equal(next) {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.publish()
}

// publish delivers the current state to every subscriber. notifyMu keeps
// deliveries from interleaving.
func (s *Session) publish() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	state := s.state
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}
