package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/query"
)

// Populator attaches a related resource to a batch of documents.
type Populator[T any] func(ctx context.Context, docs []*T) error

// Collection is a generic document store implementing ports.Store[T].
//
// A base filter is AND-ed into every read, update and delete, which is how
// deactivated users and secret tours stay invisible.
type Collection[T any] struct {
	col        *mongo.Collection
	resource   string
	base       bson.M
	conflict   string
	populators map[string]Populator[T]
	defaults   []string
}

// CollectionOption configures a Collection.
type CollectionOption[T any] func(*Collection[T])

// WithBaseFilter hides every document not matching filter.
func WithBaseFilter[T any](filter bson.M) CollectionOption[T] {
	return func(c *Collection[T]) { c.base = filter }
}

// WithConflictMessage sets the message returned on a unique-index violation.
func WithConflictMessage[T any](msg string) CollectionOption[T] {
	return func(c *Collection[T]) { c.conflict = msg }
}

// WithPopulator registers an eager-loadable relation under name.
func WithPopulator[T any](name string, fn Populator[T]) CollectionOption[T] {
	return func(c *Collection[T]) { c.populators[name] = fn }
}

// WithDefaultPopulate names relations loaded on every read.
func WithDefaultPopulate[T any](names ...string) CollectionOption[T] {
	return func(c *Collection[T]) { c.defaults = append(c.defaults, names...) }
}

// NewCollection binds a Collection to db.name. resource is the singular
// noun used in not-found messages.
func NewCollection[T any](db *mongo.Database, name, resource string, opts ...CollectionOption[T]) *Collection[T] {
	c := &Collection[T]{
		col:        db.Collection(name),
		resource:   resource,
		conflict:   fmt.Sprintf("duplicate %s", resource),
		populators: make(map[string]Populator[T]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Raw exposes the underlying driver collection for aggregations.
func (c *Collection[T]) Raw() *mongo.Collection { return c.col }

func (c *Collection[T]) notFound() error {
	return domain.NotFound(fmt.Sprintf("No %s found with that ID", c.resource))
}

// scoped AND-s the base filter into filter.
func (c *Collection[T]) scoped(filter bson.M) bson.M {
	if len(c.base) == 0 {
		return filter
	}
	if len(filter) == 0 {
		return c.base
	}
	return bson.M{"$and": bson.A{c.base, filter}}
}

// objectID parses a hex id. A malformed id can match no document, so it is
// reported as not found.
func (c *Collection[T]) objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, c.notFound()
	}
	return oid, nil
}

func (c *Collection[T]) mapWriteErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return domain.Conflict(c.conflict)
	}
	return err
}

// Create inserts doc and returns the stored document. Defaults and
// normalisation are applied before the insert.
func (c *Collection[T]) Create(ctx context.Context, doc *T) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if d, ok := any(doc).(domain.Defaulter); ok {
		d.ApplyDefaults(time.Now())
	}
	if n, ok := any(doc).(domain.Normalizer); ok {
		n.Normalize()
	}

	res, err := c.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, c.mapWriteErr(err)
	}

	// read back without the base filter: a new secret tour is still returned
	// to its creator
	var created T
	if err := c.col.FindOne(ctx, bson.M{"_id": res.InsertedID}).Decode(&created); err != nil {
		return nil, fmt.Errorf("read back %s: %w", c.resource, err)
	}
	c.hydrate([]*T{&created})
	return &created, nil
}

// FindByID returns the visible document with id.
func (c *Collection[T]) FindByID(ctx context.Context, id string, populate ...string) (*T, error) {
	oid, err := c.objectID(id)
	if err != nil {
		return nil, err
	}
	return c.FindOne(ctx, bson.M{"_id": oid}, populate...)
}

// FindOne returns the first visible document matching filter.
func (c *Collection[T]) FindOne(ctx context.Context, filter bson.M, populate ...string) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc T
	if err := c.col.FindOne(ctx, c.scoped(filter)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, c.notFound()
		}
		return nil, fmt.Errorf("find %s: %w", c.resource, err)
	}
	docs := []*T{&doc}
	c.hydrate(docs)
	if err := c.populate(ctx, docs, populate); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindMany executes a query spec against the visible documents.
func (c *Collection[T]) FindMany(ctx context.Context, spec query.Spec) ([]*T, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find()
	if len(spec.Sort) > 0 {
		opts.SetSort(spec.Sort)
	}
	if len(spec.Projection) > 0 {
		opts.SetProjection(spec.Projection)
	}
	if spec.Skip > 0 {
		opts.SetSkip(spec.Skip)
	}
	if spec.Limit > 0 {
		opts.SetLimit(spec.Limit)
	}
	return c.find(ctx, c.scoped(spec.Filter), opts)
}

// Find returns every visible document matching filter.
func (c *Collection[T]) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*T, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.find(ctx, c.scoped(filter), opts...)
}

func (c *Collection[T]) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*T, error) {
	if filter == nil {
		filter = bson.M{}
	}
	cur, err := c.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.resource, err)
	}
	docs := make([]*T, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.resource, err)
	}
	c.hydrate(docs)
	if err := c.populate(ctx, docs, nil); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateByID applies $set to the visible document with id and returns the
// post-update document.
func (c *Collection[T]) UpdateByID(ctx context.Context, id string, set bson.M) (*T, error) {
	oid, err := c.objectID(id)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return c.FindByID(ctx, id)
	}
	return c.update(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

func (c *Collection[T]) update(ctx context.Context, filter, update bson.M) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc T
	err := c.col.FindOneAndUpdate(ctx, c.scoped(filter), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, c.notFound()
		}
		return nil, c.mapWriteErr(err)
	}
	docs := []*T{&doc}
	c.hydrate(docs)
	if err := c.populate(ctx, docs, nil); err != nil {
		return nil, err
	}
	return &doc, nil
}

// updateRaw applies update to the visible document with id without reading
// it back.
func (c *Collection[T]) updateRaw(ctx context.Context, id string, update bson.M) error {
	oid, err := c.objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := c.col.UpdateOne(ctx, c.scoped(bson.M{"_id": oid}), update)
	if err != nil {
		return c.mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return c.notFound()
	}
	return nil
}

// DeleteByID removes the visible document with id.
func (c *Collection[T]) DeleteByID(ctx context.Context, id string) error {
	oid, err := c.objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := c.col.DeleteOne(ctx, c.scoped(bson.M{"_id": oid}))
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.resource, err)
	}
	if res.DeletedCount == 0 {
		return c.notFound()
	}
	return nil
}

// EnsureIndexes creates the given indexes on the collection.
func (c *Collection[T]) EnsureIndexes(ctx context.Context, indexes []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (c *Collection[T]) hydrate(docs []*T) {
	for _, d := range docs {
		if h, ok := any(d).(domain.Hydrator); ok {
			h.Hydrate()
		}
	}
}

func (c *Collection[T]) populate(ctx context.Context, docs []*T, extra []string) error {
	if len(docs) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	for _, name := range append(append([]string(nil), c.defaults...), extra...) {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		fn, ok := c.populators[name]
		if !ok {
			return fmt.Errorf("populate %s: unknown relation %q", c.resource, name)
		}
		if err := fn(ctx, docs); err != nil {
			return fmt.Errorf("populate %s.%s: %w", c.resource, name, err)
		}
	}
	return nil
}

// objectIDs parses hex ids, skipping malformed ones.
func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}
