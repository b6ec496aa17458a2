package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/natours/tours-api/internal/core/domain"
)

const collectionUsers = "users"

// UserRepository implements ports.UserRepository.
type UserRepository struct {
	*Collection[domain.User]
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		Collection: NewCollection[domain.User](db, collectionUsers, "user",
			WithBaseFilter[domain.User](bson.M{"active": bson.M{"$ne": false}}),
			WithConflictMessage[domain.User]("Email already in use. Please use another email!"),
		),
	}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := r.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ClaimResetToken consumes a live reset token with a single
// find-and-modify, so the token cannot be redeemed twice.
func (r *UserRepository) ClaimResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	return r.update(ctx, bson.M{
		"passwordResetToken":   tokenHash,
		"passwordResetExpires": bson.M{"$gt": now.UTC()},
	}, bson.M{"$unset": bson.M{
		"passwordResetToken":   "",
		"passwordResetExpires": "",
	}})
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.updateRaw(ctx, id, bson.M{"$set": bson.M{
		"passwordResetToken":   tokenHash,
		"passwordResetExpires": expires.UTC(),
	}})
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string) error {
	return r.updateRaw(ctx, id, bson.M{"$unset": bson.M{
		"passwordResetToken":   "",
		"passwordResetExpires": "",
	}})
}

func (r *UserRepository) SetPassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	return r.updateRaw(ctx, id, bson.M{
		"$set": bson.M{
			"password":          hash,
			"passwordChangedAt": changedAt.UTC(),
		},
		"$unset": bson.M{
			"passwordResetToken":   "",
			"passwordResetExpires": "",
		},
	})
}

// Deactivate soft-deletes the account; it disappears from every read.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	return r.updateRaw(ctx, id, bson.M{"$set": bson.M{"active": false}})
}

// EnsureIndexes creates the unique email index.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	return r.Collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "passwordResetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
}

var summaryProjection = bson.M{"name": 1, "email": 1, "photo": 1, "role": 1}

// loadUserSummaries fetches the public profile of each id, keyed by id.
// Deactivated users are omitted.
func loadUserSummaries(ctx context.Context, db *mongo.Database, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.UserSummary, error) {
	out := make(map[primitive.ObjectID]domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	filter := bson.M{"_id": bson.M{"$in": ids}, "active": bson.M{"$ne": false}}
	cur, err := db.Collection(collectionUsers).Find(ctx, filter, options.Find().SetProjection(summaryProjection))
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	var users []domain.UserSummary
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
