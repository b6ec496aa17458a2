package ports

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/natours/tours-api/internal/core/query"
)

// Store is the persistence capability every resource handled by the generic
// handler factory provides. Missing records surface as domain.ErrNotFound,
// uniqueness violations as domain.ErrConflict.
type Store[T any] interface {
	Create(ctx context.Context, doc *T) (*T, error)
	// FindByID eager-loads the named relations in addition to the store's
	// default ones.
	FindByID(ctx context.Context, id string, populate ...string) (*T, error)
	FindMany(ctx context.Context, spec query.Spec) ([]*T, error)
	// UpdateByID applies set and returns the post-update record.
	UpdateByID(ctx context.Context, id string, set bson.M) (*T, error)
	DeleteByID(ctx context.Context, id string) error
}
