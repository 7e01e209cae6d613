// Package auth keeps time-limited download authorizations and the admin set.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTTL = 12 * time.Hour

var (
	// ErrAdminOnly indicates a non-admin called an admin operation.
	ErrAdminOnly = errors.New("admins only")
	// ErrTokenRequired indicates a non-admin omitted the shortener token.
	ErrTokenRequired = errors.New("missing shortener token (only admins may omit it)")
)

// Record is one user's authorization.
type Record struct {
	UserID    int64
	Token     string // link shortener API token
	ExpiresAt time.Time
}

// Active reports whether the record is valid at now.
func (r Record) Active(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.Before(r.ExpiresAt)
}

type Store interface {
	Get(ctx context.Context, user int64) (Record, bool, error)
	Put(ctx context.Context, r Record) error
	IsAdmin(ctx context.Context, user int64) (bool, error)
	AddAdmin(ctx context.Context, user int64) error
	RemoveAdmin(ctx context.Context, user int64) error
	Admins(ctx context.Context) ([]int64, error)
}

// Service applies the authorization rules on top of a Store.
type Service struct {
	store  Store
	master string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(store Store, masterToken string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, master: masterToken, ttl: ttl, now: time.Now}
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Seed adds the configured admins. Failures are logged and skipped.
func (s *Service) Seed(ctx context.Context, admins []int64) {
	for _, id := range admins {
		if err := s.store.AddAdmin(ctx, id); err != nil {
			log.Warn().Err(err).Int64("user_id", id).Msg("seed admin failed")
		}
	}
}

// Authorise grants target access for the TTL. An admin caller may omit the
// token, in which case the master token is stored.
func (s *Service) Authorise(ctx context.Context, caller, target int64, token string) (Record, error) {
	if token == "" {
		admin, err := s.store.IsAdmin(ctx, caller)
		if err != nil {
			return Record{}, fmt.Errorf("check admin: %w", err)
		}
		if !admin {
			return Record{}, ErrTokenRequired
		}
	}
	return s.Grant(ctx, target, token)
}

// Grant authorises target without checking a caller. An empty token falls
// back to the master token.
func (s *Service) Grant(ctx context.Context, target int64, token string) (Record, error) {
	if token == "" {
		if s.master == "" {
			return Record{}, ErrTokenRequired
		}
		token = s.master
	}
	r := Record{UserID: target, Token: token, ExpiresAt: s.now().Add(s.ttl).UTC()}
	if err := s.store.Put(ctx, r); err != nil {
		return Record{}, fmt.Errorf("store authorization: %w", err)
	}
	return r, nil
}

// Status returns the stored record for user.
func (s *Service) Status(ctx context.Context, user int64) (Record, bool, error) {
	return s.store.Get(ctx, user)
}

// Authorized reports whether user may merge: an active record or admin.
func (s *Service) Authorized(ctx context.Context, user int64) (bool, error) {
	r, ok, err := s.store.Get(ctx, user)
	if err != nil {
		return false, err
	}
	if ok && r.Active(s.now()) {
		return true, nil
	}
	return s.store.IsAdmin(ctx, user)
}

// ShortenerToken picks the token used to shorten user's links: their own
// while active, else the master token for admins, else none.
func (s *Service) ShortenerToken(ctx context.Context, user int64) string {
	r, ok, err := s.store.Get(ctx, user)
	if err == nil && ok && r.Active(s.now()) && r.Token != "" {
		return r.Token
	}
	if admin, err := s.store.IsAdmin(ctx, user); err == nil && admin {
		return s.master
	}
	return ""
}

func (s *Service) IsAdmin(ctx context.Context, user int64) (bool, error) {
	return s.store.IsAdmin(ctx, user)
}

// AddAdmin, RemoveAdmin and Admins require caller to be an admin.
func (s *Service) AddAdmin(ctx context.Context, caller, target int64) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	return s.store.AddAdmin(ctx, target)
}

func (s *Service) RemoveAdmin(ctx context.Context, caller, target int64) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	return s.store.RemoveAdmin(ctx, target)
}

func (s *Service) Admins(ctx context.Context, caller int64) ([]int64, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	return s.store.Admins(ctx)
}

func (s *Service) requireAdmin(ctx context.Context, caller int64) error {
	ok, err := s.store.IsAdmin(ctx, caller)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !ok {
		return ErrAdminOnly
	}
	return nil
}
