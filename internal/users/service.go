package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"docvault/internal/access"
)

const (
	principalCacheSize = 1024
	principalCacheTTL  = time.Minute
)

type Service struct {
	Repo       Repo
	principals *expirable.LRU[string, access.Principal]
}

func NewService(repo Repo) *Service {
	return &Service{
		Repo:       repo,
		principals: expirable.NewLRU[string, access.Principal](principalCacheSize, nil, principalCacheTTL),
	}
}

// UpsertFromAuth persists the identity returned by the OAuth provider.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return User{}, errors.New("user id and email are required")
	}
	saved, err := s.Repo.Upsert(ctx, user)
	if err != nil {
		return User{}, err
	}
	if s.principals != nil {
		s.principals.Remove(saved.ID)
	}
	return saved, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

// ResolvePrincipal maps a token subject to its stored role.
func (s *Service) ResolvePrincipal(ctx context.Context, subject string) (access.Principal, error) {
	if strings.TrimSpace(subject) == "" {
		return access.Principal{}, access.ErrUnknownPrincipal
	}
	if s.principals != nil {
		if p, ok := s.principals.Get(subject); ok {
			return p, nil
		}
	}
	user, err := s.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return access.Principal{}, access.ErrUnknownPrincipal
		}
		return access.Principal{}, err
	}
	p := access.Principal{ID: user.ID, Role: user.Role}
	if s.principals != nil {
		s.principals.Add(subject, p)
	}
	return p, nil
}

var _ access.PrincipalResolver = (*Service)(nil)
