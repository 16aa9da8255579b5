package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
)

var ErrUserNotFound = errors.New("user not found")

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// Capabilities loads a user and derives what their role allows.
func (s *UserService) Capabilities(ctx context.Context, userID string) (domain.User, domain.Capabilities, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, domain.Capabilities{}, err
	}
	return u, domain.CapabilitiesOf(u), nil
}
