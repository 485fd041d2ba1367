package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTTL is returned when a session would expire immediately.
var ErrInvalidTTL = errors.New("sessions: ttl must be positive")

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service { return &Service{repo: r, now: time.Now} }

// CreateSession stores a new session for identity and returns it
func (s *Service) CreateSession(ctx context.Context, identity string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate returns the session if it exists and has not expired, nil otherwise
func (s *Service) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now().UTC()) {
		// cleanup expired session
		_ = s.repo.Delete(ctx, id)
		return nil, nil
	}
	return sess, nil
}

// Revoke deletes the session; revoking an unknown id is not an error.
func (s *Service) Revoke(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
