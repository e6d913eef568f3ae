/*
Package authsdk provides the client side of the mail backend's session: the
token pair, the renewal coordinator, the authenticated request gateway and
the process-wide session state.

# Overview

The package is organized around three types:

  - SDKClient: owns the token store, performs requests through Do and wraps
    the /auth endpoints (Login, Register, GoogleExchange, Refresh, Logout)
  - Renewer: guarantees at most one access token renewal at a time
  - Session: the observable authentication state, driven by the startup
    check, sign-in, logout, silent refresh and the "session ended" signal

Create the client once at startup and share it:

	tokens := tokenstore.OpenKeyring(tokenstore.KeyringConfig{}, logger)
	client := authsdk.NewSDKClient("http://localhost:8080", tokens, logger)

	session := authsdk.NewSession(client)
	defer session.Close()

	state := session.Start(ctx)
	if !state.Authenticated {
		err := session.Login(ctx, email, password)
	}

# Authenticated Requests

Every call made through Do carries the stored access token as a bearer
credential unless Request.SkipAuth is set:

	var out struct{ Labels []Label `json:"labels"` }
	err := client.Do(ctx, authsdk.Request{Path: "/labels"}, &out)

When the backend answers 401 the gateway asks the Renewer for a new access
token, persists the renewed pair and replays the request exactly once. A
second 401 is returned as *APIError; the gateway never loops. A logical call
therefore makes at most two network attempts.

A 204 No Content response is an empty success. Any other non-2xx response
is returned as *APIError carrying the backend's message, or "request failed"
when the body has none.

# Renewal

Concurrent calls that are rejected at the same time share one renewal: the
first caller starts it, the rest wait for its result. Without a stored
refresh token Renew fails with ErrNoRefreshToken and makes no network call.

A failed renewal is terminal. The gateway clears both tokens, notifies the
registered SessionEndedHandler (normally the Session) and sends the
Navigator to LoginPath. The failing call returns an error wrapping
ErrSessionExpired.

# Logout During Renewal

Session.Logout resets the Renewer before clearing tokens. A renewal that
completes afterwards resolves its waiters with ErrSessionReset and its
tokens are never persisted, so logout cannot be undone by a late result.

# Error Handling

  - *APIError: a non-2xx response, including a second 401 after renewal
  - ErrSessionExpired: renewal failed and the session was torn down
  - ErrSessionReset: the session was reset while the call waited
  - ErrMalformedToken: an access token that cannot be decoded

Use UserMessage to turn any of these into display text.

# Thread Safety

SDKClient, Renewer and Session are safe for concurrent use.
*/
package authsdk
