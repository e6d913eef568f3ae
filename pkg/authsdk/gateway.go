package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tabmail/pkg/slogx"
	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

// Request describes one logical call to the backend.
type Request struct {
	Method string // default GET
	Path   string
	Query  url.Values
	Body   any // JSON-encoded once, replayed on retry

	// SkipAuth sends the request without a bearer token and never renews.
	SkipAuth bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Do performs req and decodes a successful response into out (which may be
// nil). A 401 on an authenticated call triggers a shared renewal followed by
// exactly one replay; a second 401 is returned as *APIError.
//
// When renewal fails the session is torn down: tokens are cleared, the
// session-ended handler is notified, the Navigator is sent to LoginPath and
// the returned error wraps ErrSessionExpired.
func (c *SDKClient) Do(ctx context.Context, req Request, out any) error {
	body, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	token := c.bearer(req)
	resp, err := c.send(ctx, req, body, token)
	if err != nil {
		c.metrics.request("transport_error")
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.SkipAuth {
		discard(resp)

		resp, err = c.attemptAfterRenew(ctx, req, body, token)
		if err != nil {
			return err
		}
	}

	if err := decodeJSON(resp, out); err != nil {
		c.metrics.request("error")
		return err
	}

	c.metrics.request("ok")
	return nil
}

// attemptAfterRenew renews the access token that was rejected and replays
// the request once with the new one.
func (c *SDKClient) attemptAfterRenew(
	ctx context.Context,
	req Request,
	body []byte,
	rejected string,
) (*http.Response, error) {
	logger := slogx.FromContext(ctx, c.Logger).With("path", req.Path)

	ren, err := c.renewer.Renew(ctx, rejected)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		c.metrics.request("cancelled")
		return nil, err
	case errors.Is(err, ErrSessionReset):
		c.metrics.request("reset")
		return nil, err
	default:
		c.endSession(ctx, ren, err)
		c.metrics.request("session_expired")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	if !c.renewer.Commit(ren, c.storeTokens) {
		c.metrics.request("reset")
		return nil, ErrSessionReset
	}

	logger.Debug("replaying request with renewed token")
	c.metrics.retry()

	resp, err := c.send(ctx, req, body, ren.AccessToken)
	if err != nil {
		c.metrics.request("transport_error")
		return nil, err
	}
	return resp, nil
}

// endSession is the terminal failure path. Only the first caller for a given
// failed renewal clears state; every caller still fails.
func (c *SDKClient) endSession(ctx context.Context, ren Renewal, cause error) {
	if !c.renewer.expire(ren, c.tokens.ClearAll) {
		return
	}

	slogx.FromContext(ctx, c.Logger).Warn("session ended", "error", cause)

	if h := c.sessionEndedHandler(); h != nil {
		h.SessionEnded()
	}
	if nav := c.Navigator; nav != nil && nav.Location() != LoginPath {
		nav.Navigate(LoginPath)
	}
}

func (c *SDKClient) bearer(req Request) string {
	if req.SkipAuth {
		return ""
	}
	token, _ := c.tokens.Get(tokenstore.Access)
	return token
}
