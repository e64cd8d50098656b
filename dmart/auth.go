package dmart

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	loginPath   = "/user/login"
	logoutPath  = "/user/logout"
	profilePath = "/user/profile"
)

// loginAttributes are the attributes of the record returned by /user/login
type loginAttributes struct {
	AccessToken string `json:"access_token"`
	Type        string `json:"type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// authenticator turns credentials into a Session. It never retries.
type authenticator struct {
	sender Sender
	logger zerolog.Logger
	now    func() time.Time
}

func newAuthenticator(sender Sender, logger zerolog.Logger) *authenticator {
	return &authenticator{
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// authenticate logs in and returns the resulting session. Transport errors
// are returned unchanged.
func (a *authenticator) authenticate(ctx context.Context, cfg Config) (Session, error) {
	resp, err := a.sender.Send(ctx, &Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body: map[string]string{
			"shortname": cfg.Username,
			"password":  cfg.Password,
		},
	})
	if err != nil {
		return Session{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, newAPIError(resp, true)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return Session{}, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrService,
			Message:    "invalid login response: " + err.Error(),
			Body:       string(resp.Body),
		}
	}

	if env.Status == StatusFailed {
		return Session{}, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrAuthentication,
			Detail:     env.Error,
			Body:       string(resp.Body),
		}
	}

	if len(env.Records) == 0 {
		return Session{}, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrService,
			Message:    "login response has no records",
			Body:       string(resp.Body),
		}
	}

	rec := env.Records[0]
	var attrs loginAttributes
	if err := rec.DecodeAttributes(&attrs); err != nil || attrs.AccessToken == "" {
		return Session{}, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrService,
			Message:    "login response has no access token",
		}
	}

	session := Session{
		Token:     attrs.AccessToken,
		Shortname: rec.Shortname,
	}
	if session.Shortname == "" {
		session.Shortname = cfg.Username
	}
	a.applyExpiry(&session, attrs)

	a.logger.Debug().
		Str("user", session.Shortname).
		Time("expires_at", session.ExpiresAt).
		Msg("Authenticated with Dmart")

	return session, nil
}

// applyExpiry fills IssuedAt/ExpiresAt from the token's JWT claims, falling
// back to an expires_in attribute. Tokens that are not JWTs keep no expiry.
func (a *authenticator) applyExpiry(session *Session, attrs loginAttributes) {
	now := a.now()
	session.IssuedAt = now

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.Token, claims); err == nil {
		if claims.IssuedAt != nil {
			session.IssuedAt = claims.IssuedAt.Time
		}
		if claims.ExpiresAt != nil {
			session.ExpiresAt = claims.ExpiresAt.Time
			return
		}
	}

	if attrs.ExpiresIn > 0 {
		session.ExpiresAt = now.Add(time.Duration(attrs.ExpiresIn) * time.Second)
	}
}

// logout invalidates the token on the server
func (a *authenticator) logout(ctx context.Context, session Session) error {
	resp, err := a.sender.Send(ctx, &Request{
		Method: http.MethodPost,
		Path:   logoutPath,
		Header: bearer(session.Token),
	})
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, false)
	}

	return nil
}

func bearer(token string) http.Header {
	h := make(http.Header, 1)
	h.Set("Authorization", "Bearer "+token)
	return h
}
