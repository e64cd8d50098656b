package dmart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Client is a session-holding Dmart API client. Each Client owns its own
// session; create one per instance/user pair.
type Client struct {
	config Config
	opts   *clientOptions
	sender Sender
	auth   *authenticator
	logger zerolog.Logger

	// connectMu serializes login attempts
	connectMu sync.Mutex
	// mu guards store
	mu     sync.RWMutex
	store  sessionStore
	reauth singleflight.Group
}

// NewClient creates a new Dmart client. No network call is made until Connect.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	sender := o.sender
	if sender == nil {
		sender = newTransport(cfg.baseURL(), o, logger)
	}

	return &Client{
		config: cfg,
		opts:   o,
		sender: sender,
		auth:   newAuthenticator(sender, logger),
		logger: logger,
	}
}

// Connect validates the configuration and logs in. Calling it while already
// connected logs in again, replacing the session. On failure the previous
// session is kept, unless the credentials were rejected, in which case it is
// cleared.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return err
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	_, err := c.login(ctx)
	return err
}

// login must be called with connectMu held
func (c *Client) login(ctx context.Context) (Session, error) {
	session, err := c.auth.authenticate(ctx, c.config)
	if err == nil && ctx.Err() != nil {
		err = &RequestError{
			Method: http.MethodPost,
			URL:    c.config.baseURL() + loginPath,
			Kind:   ErrNetwork,
			Err:    ctx.Err(),
		}
	}
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			c.mu.Lock()
			c.store.clear()
			c.mu.Unlock()
		}
		c.logger.Debug().Err(err).Object("dmart", c.config).Msg("Dmart login failed")
		return Session{}, err
	}

	c.mu.Lock()
	c.store.set(session)
	c.mu.Unlock()

	c.logger.Info().
		Object("dmart", c.config).
		Str("user", session.Shortname).
		Msg("Connected to Dmart")

	return session, nil
}

// Disconnect logs out and clears the session. The logout call is best
// effort: the local session is cleared even if the server cannot be reached.
func (c *Client) Disconnect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	session, ok := c.Session()
	if !ok {
		return nil
	}

	if err := c.auth.logout(ctx, session); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to notify Dmart of logout")
	}

	c.mu.Lock()
	c.store.clear()
	c.mu.Unlock()

	c.logger.Debug().Str("user", session.Shortname).Msg("Disconnected from Dmart")
	return nil
}

// IsConnected reports whether the client holds a session
func (c *Client) IsConnected() bool {
	_, ok := c.Session()
	return ok
}

// Session returns a copy of the current session, if any
func (c *Client) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.get()
}

// GetProfile retrieves the profile of the authenticated user
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	env, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: profilePath})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile, err := profileFromEnvelope(env)
	if err != nil {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Kind:       ErrService,
			Message:    err.Error(),
		}
	}

	return profile, nil
}

// Do sends an authenticated request and decodes the response envelope.
// If the credential is rejected (or known to be expired), the client logs in
// again once and retries the request once before giving up.
func (c *Client) Do(ctx context.Context, req *Request) (*Envelope, error) {
	session, err := c.activeSession(ctx)
	if err != nil {
		return nil, err
	}

	reauthenticated := false
	if session.ExpiredAt(c.auth.now(), c.opts.expirySkew) {
		c.logger.Debug().Time("expires_at", session.ExpiresAt).Msg("Session expired, re-authenticating")
		if session, err = c.reauthenticate(ctx, session.Token, false); err != nil {
			return nil, err
		}
		reauthenticated = true
	}

	resp, err := c.send(ctx, req, session)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !reauthenticated {
		c.logger.Debug().Str("path", req.Path).Msg("Credential rejected, re-authenticating")
		if session, err = c.reauthenticate(ctx, session.Token, true); err != nil {
			return nil, err
		}
		if resp, err = c.send(ctx, req, session); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidate(session.Token)
		return nil, newAPIError(resp, false)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp, false)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrService,
			Message:    err.Error(),
			Body:       string(resp.Body),
		}
	}

	if env.Status == StatusFailed {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrService,
			Detail:     env.Error,
			Body:       string(resp.Body),
		}
	}

	return env, nil
}

// activeSession returns the current session, or logs in on demand when
// auto-connect is enabled.
func (c *Client) activeSession(ctx context.Context) (Session, error) {
	if session, ok := c.Session(); ok {
		return session, nil
	}
	if !c.opts.autoConnect {
		return Session{}, ErrNotConnected
	}

	if err := c.config.Validate(); err != nil {
		return Session{}, err
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if session, ok := c.Session(); ok {
		return session, nil
	}
	return c.login(ctx)
}

// reauthenticate replaces a stale token with a fresh login. Concurrent
// callers holding the same stale token share a single login, which runs
// detached from any one caller's context so that a caller giving up does not
// fail the others. When rejected is set the server has refused the token and
// it is dropped if the login fails; a token that is only locally expired is
// kept unless the credentials themselves were rejected.
func (c *Client) reauthenticate(ctx context.Context, staleToken string, rejected bool) (Session, error) {
	ch := c.reauth.DoChan(staleToken, func() (any, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.timeout)
		defer cancel()

		c.connectMu.Lock()
		defer c.connectMu.Unlock()

		if session, ok := c.Session(); ok && session.Token != staleToken {
			return session, nil
		}
		return c.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return Session{}, &RequestError{
			Method: http.MethodPost,
			URL:    c.config.baseURL() + loginPath,
			Kind:   classifyTransportError(ctx.Err()),
			Err:    ctx.Err(),
		}
	case res := <-ch:
		if res.Err != nil {
			if rejected {
				c.invalidate(staleToken)
			}
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	}
}

func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.clearIf(token) {
		c.logger.Debug().Msg("Dmart session invalidated")
	}
}

func (c *Client) send(ctx context.Context, req *Request, session Session) (*Response, error) {
	out := *req
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header, 1)
	}
	out.Header.Set("Authorization", "Bearer "+session.Token)

	return c.sender.Send(ctx, &out)
}
