package ports

import (
	"context"
	"time"

	"github.com/natours/tours-api/internal/core/domain"
)

// UserRepository persists accounts. Deactivated accounts are invisible to
// every read.
type UserRepository interface {
	Store[domain.User]
	// FindByEmail returns the account including its password hash.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// ClaimResetToken matches the stored token hash whose expiry is after now
	// and clears it in the same write. Of concurrent claims for one token,
	// only one gets the user; the rest get NotFound.
	ClaimResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	// SetPassword stores a new hash, stamps passwordChangedAt and clears any
	// pending reset token.
	SetPassword(ctx context.Context, id, hash string, changedAt time.Time) error
	Deactivate(ctx context.Context, id string) error
}
