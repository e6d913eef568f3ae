package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/tabmail/pkg/slogx"
	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

// RefreshFunc exchanges a refresh token for a new pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (*TokenPair, error)

// Renewal is the result of a renewal. It is bound to the session generation
// it started in and to the flight that produced it; Commit refuses renewals
// from an earlier generation or one older than the last committed flight.
type Renewal struct {
	AccessToken  string
	RefreshToken string
	Email        string

	generation uint64
	seq        uint64
}

// flight is a renewal in progress. done is closed once result/err are set.
type flight struct {
	done       chan struct{}
	stale      string
	generation uint64
	seq        uint64

	result Renewal
	err    error
}

// Renewer coordinates access token renewal. At most one renewal runs at a
// time; every caller arriving while one is in flight receives its result.
//
// State is Idle (inflight == nil) or Renewing (inflight != nil). Both the
// check and the transition happen under mu, before any I/O.
type Renewer struct {
	tokens  tokenstore.Store
	refresh RefreshFunc
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.Mutex
	generation uint64
	seq        uint64 // last flight started
	committed  uint64 // seq of the last persisted renewal
	inflight   *flight
	last       *flight // most recent completed flight of this generation
}

// NewRenewer returns an idle Renewer.
func NewRenewer(tokens tokenstore.Store, refresh RefreshFunc, logger *slog.Logger) *Renewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renewer{tokens: tokens, refresh: refresh, logger: logger}
}

// Renew returns a fresh access token for a caller whose request was rejected
// while carrying stale.
//
// If stale was the token the last renewal started from, that renewal's
// result is returned without a backend call. If a renewal is in flight the caller joins it.
// Otherwise a new renewal starts, unless no refresh token is stored, in which
// case ErrNoRefreshToken is returned immediately.
//
// The renewal itself is not cancelled by ctx; ctx only bounds how long this
// caller waits for it.
func (r *Renewer) Renew(ctx context.Context, stale string) (Renewal, error) {
	r.mu.Lock()

	if last := r.last; last != nil && stale != "" && last.stale == stale {
		r.mu.Unlock()
		r.metrics.renewal("memo")
		return last.result, last.err
	}

	f := r.inflight
	if f == nil {
		refreshToken, ok := r.tokens.Get(tokenstore.Refresh)
		if !ok {
			gen := r.generation
			r.mu.Unlock()
			r.metrics.renewal("no_refresh_token")
			return Renewal{generation: gen}, ErrNoRefreshToken
		}

		r.seq++
		f = &flight{
			done:       make(chan struct{}),
			stale:      stale,
			generation: r.generation,
			seq:        r.seq,
		}
		r.inflight = f

		go r.run(context.WithoutCancel(ctx), f, refreshToken)
	} else {
		r.metrics.renewal("joined")
	}
	r.mu.Unlock()

	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Renewal{generation: f.generation}, ctx.Err()
	}
}

func (r *Renewer) run(ctx context.Context, f *flight, refreshToken string) {
	logger := slogx.FromContext(ctx, r.logger).With("stale", slogx.TokenFingerprint(f.stale))
	logger.Debug("renewing access token")

	pair, err := r.refresh(ctx, refreshToken)
	if err == nil && (pair == nil || pair.AccessToken == "") {
		err = errors.New("refresh response carried no access token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(f.done)

	if r.inflight == f {
		r.inflight = nil
	}

	f.result.generation = f.generation
	f.result.seq = f.seq

	switch {
	case f.generation != r.generation:
		logger.Debug("discarding renewal from a reset session")
		f.err = ErrSessionReset
		r.metrics.renewal("reset")

	case err != nil:
		logger.Warn("access token renewal failed", "error", err)
		f.err = fmt.Errorf("failed to renew access token: %w", err)
		r.last = f
		r.metrics.renewal("failed")

	default:
		f.result.AccessToken = pair.AccessToken
		f.result.RefreshToken = pair.RefreshToken
		f.result.Email = pair.Email
		r.last = f
		logger.Debug("access token renewed", "fresh", slogx.TokenFingerprint(pair.AccessToken))
		r.metrics.renewal("renewed")
	}
}

// Commit runs persist with the renewed pair if the session has not been
// reset since the renewal started and no later renewal has been committed.
// Waiters of the same flight may all commit it. It reports whether persist ran.
func (r *Renewer) Commit(ren Renewal, persist func(access, refresh string)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ren.AccessToken == "" || ren.generation != r.generation || ren.seq < r.committed {
		return false
	}
	r.committed = ren.seq
	persist(ren.AccessToken, ren.RefreshToken)
	return true
}

// Reset abandons any in-flight renewal and forgets the last result. Waiters
// of an abandoned renewal receive ErrSessionReset.
func (r *Renewer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// Replace resets the renewer and runs persist in the same critical section,
// so a renewal started under the old pair can never overwrite the new one.
func (r *Renewer) Replace(persist func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	persist()
}

// expire resets the renewer and runs clear if the failed renewal belongs to
// the current generation. It reports whether it did.
func (r *Renewer) expire(ren Renewal, clear func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ren.generation != r.generation {
		return false
	}
	r.resetLocked()
	clear()
	return true
}

// Renewing reports whether a renewal is in flight.
func (r *Renewer) Renewing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight != nil
}

func (r *Renewer) resetLocked() {
	r.generation++
	r.inflight = nil
	r.last = nil
}
