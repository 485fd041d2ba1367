// Package auth turns console credentials into sessions and session tokens
// back into identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaybots/relay/backend/go-services/internal/accounts"
	"github.com/relaybots/relay/backend/go-services/internal/sessions"
	"github.com/relaybots/relay/backend/go-services/internal/tokens"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
	"github.com/relaybots/relay/backend/go-services/pkg/metrics"
)

// Identity is the console account name of an authenticated caller. The zero
// value means unauthenticated.
type Identity string

func (i Identity) Valid() bool { return i != "" }

// Reasons carried by AuthError.
const (
	ReasonBadCredentials = "invalid credentials"
	ReasonMissingToken   = "missing session"
	ReasonInvalidToken   = "invalid session"
	ReasonExpired        = "session expired or revoked"
	ReasonUnauthorized   = "not authenticated"
)

// AuthError is returned for every authentication or authorization failure.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Require returns an AuthError unless id is a valid identity.
func Require(id Identity) error {
	if !id.Valid() {
		return &AuthError{Reason: ReasonUnauthorized}
	}
	return nil
}

// Login is the result of a successful credential check.
type Login struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}

// Service checks credentials against the static table and manages sessions.
type Service struct {
	accounts *accounts.Table
	sessions *sessions.Service
	secret   []byte
	ttl      time.Duration
}

func NewService(tbl *accounts.Table, sess *sessions.Service, secret []byte, ttl time.Duration) *Service {
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Service{accounts: tbl, sessions: sess, secret: key, ttl: ttl}
}

// TTL is the lifetime of newly issued sessions.
func (s *Service) TTL() time.Duration { return s.ttl }

// Login verifies username/password and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*Login, error) {
	if username == "" || !s.accounts.Verify(username, password) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		logger.Warnf("console login failed for %q", username)
		return nil, &AuthError{Reason: ReasonBadCredentials}
	}
	sess, err := s.sessions.CreateSession(ctx, username, s.ttl)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create session: %w", err)
	}
	tok, err := tokens.GenerateSessionToken(s.secret, sess.ID, username, s.ttl)
	if err != nil {
		_ = s.sessions.Revoke(ctx, sess.ID)
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	logger.Infof("console login: %s", username)
	return &Login{Token: tok, Identity: Identity(username), ExpiresAt: sess.ExpiresAt}, nil
}

// Authorize maps a session token to an identity. The token must verify and its
// session must still exist for an account in the table.
func (s *Service) Authorize(ctx context.Context, token string) (Identity, error) {
	sess, err := s.session(ctx, token)
	if err != nil {
		return "", err
	}
	return Identity(sess.Identity), nil
}

// Logout revokes the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	sess, err := s.session(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, sess.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	logger.Infof("console logout: %s", sess.Identity)
	return nil
}

func (s *Service) session(ctx context.Context, token string) (*sessions.Session, error) {
	if token == "" {
		return nil, &AuthError{Reason: ReasonMissingToken}
	}
	claims, err := tokens.ParseSessionToken(s.secret, token)
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidToken, Err: err}
	}
	sess, err := s.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if sess == nil || sess.Identity != claims.Subject || !s.accounts.Has(sess.Identity) {
		return nil, &AuthError{Reason: ReasonExpired}
	}
	return sess, nil
}
