package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
	"github.com/natours/tours-api/internal/core/query"
)

const statusSuccess = "success"

// Attributes no client may write through the factory.
var defaultReadOnly = []string{"id", "_id", "createdAt", "__v"}

type dataResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

type listResponse struct {
	Status  string         `json:"status"`
	Results int            `json:"results"`
	Data    map[string]any `json:"data"`
}

func success(key string, v any) dataResponse {
	return dataResponse{Status: statusSuccess, Data: map[string]any{key: v}}
}

// ScopeFunc derives an ambient filter from the route, e.g. the parent id of
// a nested resource.
type ScopeFunc func(c echo.Context) (bson.M, error)

// Factory builds the five CRUD handlers of one resource type on top of its
// store. All storage failures are returned unchanged to the error handler.
type Factory[T any] struct {
	store    ports.Store[T]
	maxLimit int64
	readOnly map[string]struct{}
	now      func() time.Time
}

// FactoryOption configures a Factory.
type FactoryOption[T any] func(*Factory[T])

// WithReadOnly adds attributes that are silently dropped from create and
// update payloads.
func WithReadOnly[T any](attrs ...string) FactoryOption[T] {
	return func(f *Factory[T]) {
		for _, a := range attrs {
			f.readOnly[a] = struct{}{}
		}
	}
}

// WithMaxLimit caps the page size of GetAll.
func WithMaxLimit[T any](n int64) FactoryOption[T] {
	return func(f *Factory[T]) { f.maxLimit = n }
}

func NewFactory[T any](store ports.Store[T], opts ...FactoryOption[T]) *Factory[T] {
	f := &Factory[T]{
		store:    store,
		maxLimit: query.DefaultMaxLimit,
		readOnly: make(map[string]struct{}),
		now:      time.Now,
	}
	for _, a := range defaultReadOnly {
		f.readOnly[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateOne persists the request body as a new record. Callers that must
// restrict which attributes are accepted do so before this handler.
func (f *Factory[T]) CreateOne(c echo.Context) error {
	doc := new(T)
	if err := f.decode(c, doc); err != nil {
		return err
	}
	return f.create(c, doc)
}

// CreateWith is CreateOne with a hook that fills route-derived attributes
// (parent ids, the current user) after the body is decoded.
func (f *Factory[T]) CreateWith(fill func(c echo.Context, doc *T) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc := new(T)
		if err := f.decode(c, doc); err != nil {
			return err
		}
		if err := fill(c, doc); err != nil {
			return err
		}
		return f.create(c, doc)
	}
}

func (f *Factory[T]) create(c echo.Context, doc *T) error {
	if d, ok := any(doc).(domain.Defaulter); ok {
		d.ApplyDefaults(f.now())
	}
	normalize(doc)
	if err := c.Validate(doc); err != nil {
		return err
	}

	created, err := f.store.Create(c.Request().Context(), doc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, success("data", created))
}

// GetOne returns the record named by :id, eager-loading populate.
func (f *Factory[T]) GetOne(populate ...string) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc, err := f.store.FindByID(c.Request().Context(), c.Param("id"), populate...)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, success("data", doc))
	}
}

// GetAll lists records matching the query string, merged with the
// route-derived scope when one is given.
func (f *Factory[T]) GetAll(scope ScopeFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		features := query.New(c.QueryParams(), query.WithMaxLimit(f.maxLimit)).Filter()
		if scope != nil {
			extra, err := scope(c)
			if err != nil {
				return err
			}
			features = features.Scope(extra)
		}
		spec := features.Sort().LimitFields().Paginate().Spec()

		docs, err := f.store.FindMany(c.Request().Context(), spec)
		if err != nil {
			return err
		}
		data, err := shape(docs, spec)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, listResponse{
			Status:  statusSuccess,
			Results: len(docs),
			Data:    map[string]any{"data": data},
		})
	}
}

// UpdateOne applies a partial update to the record named by :id. The patch
// is merged onto the current record and the whole record is validated
// again; only attributes that actually change are written.
func (f *Factory[T]) UpdateOne(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	current, err := f.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	// Decoding reuses slice and pointer storage of current, so the stored
	// state is captured first.
	before, err := toBSON(current)
	if err != nil {
		return err
	}
	merged := *current
	if err := f.decode(c, &merged); err != nil {
		return err
	}
	normalize(&merged)
	if err := c.Validate(&merged); err != nil {
		return err
	}

	set, err := changes(before, &merged)
	if err != nil {
		return err
	}
	updated, err := f.store.UpdateByID(ctx, id, set)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("data", updated))
}

// DeleteOne removes the record named by :id and answers 204.
func (f *Factory[T]) DeleteOne(c echo.Context) error {
	if err := f.store.DeleteByID(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// decode reads the JSON body onto into, dropping read-only attributes.
func (f *Factory[T]) decode(c echo.Context, into *T) error {
	attrs := map[string]json.RawMessage{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &attrs); err != nil {
		return domain.Validation("Invalid request body")
	}
	for k := range attrs {
		if _, ro := f.readOnly[k]; ro {
			delete(attrs, k)
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return domain.Validation("Invalid request body")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return domain.Validation(fmt.Sprintf("Invalid input data. %v", err))
	}
	return nil
}

func normalize(doc any) {
	if n, ok := doc.(domain.Normalizer); ok {
		n.Normalize()
	}
}

// changes returns the stored attributes whose value differs between old
// and after, including derived ones such as a slug.
func changes(old bson.M, after any) (bson.M, error) {
	next, err := toBSON(after)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for k, v := range next {
		if k == "_id" {
			continue
		}
		if prev, ok := old[k]; !ok || !reflect.DeepEqual(prev, v) {
			set[k] = v
		}
	}
	return set, nil
}

func toBSON(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return m, nil
}

// shape renders only the selected attributes (plus id) when the query
// selected or excluded fields. Dotted selections keep their top-level
// attribute.
func shape[T any](docs []*T, spec query.Spec) (any, error) {
	if len(spec.Fields) == 0 && len(spec.Excluded) == 0 {
		return docs, nil
	}
	keep := map[string]struct{}{"id": {}}
	for _, name := range spec.Fields {
		top, _, _ := strings.Cut(name, ".")
		keep[top] = struct{}{}
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		if len(spec.Fields) > 0 {
			for k := range m {
				if _, ok := keep[k]; !ok {
					delete(m, k)
				}
			}
		}
		for _, name := range spec.Excluded {
			if name != "id" {
				delete(m, name)
			}
		}
		out = append(out, m)
	}
	return out, nil
}
