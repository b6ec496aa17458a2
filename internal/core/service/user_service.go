package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

type userService struct {
	users ports.UserRepository
	log   zerolog.Logger
}

// NewUserService returns the self-service account operations.
func NewUserService(users ports.UserRepository, log zerolog.Logger) ports.UserService {
	return &userService{users: users, log: log}
}

// UpdateMe changes the caller's name and/or email. Nothing else about the
// account can be changed through this path.
func (s *userService) UpdateMe(ctx context.Context, userID string, name, email *string) (*domain.User, error) {
	set := bson.M{}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, domain.FieldValidation("name", "Please tell us your name!")
		}
		set["name"] = n
	}
	if email != nil {
		e, err := normalizeEmail(*email)
		if err != nil {
			return nil, err
		}
		set["email"] = e
	}
	return s.users.UpdateByID(ctx, userID, set)
}

// DeleteMe deactivates the caller's account. The record is kept.
func (s *userService) DeleteMe(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("user deactivated")
	return nil
}
