// Package query turns request query-string parameters into an executable
// MongoDB query description: filter predicates, sort order, field projection
// and a pagination window.
//
// Features is an immutable value. Each stage returns a new value, so a
// partially built pipeline can be reused as the base for several queries:
//
//	base := query.New(c.QueryParams()).Filter()
//	spec := base.Sort().LimitFields().Paginate().Spec()
package query

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPage     int64 = 1
	DefaultLimit    int64 = 100
	DefaultMaxLimit int64 = 500
)

// Reserved parameters drive sort/projection/pagination and never become
// filter predicates.
var reserved = map[string]struct{}{
	"page":   {},
	"sort":   {},
	"limit":  {},
	"fields": {},
}

var operators = map[string]string{
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
}

// attr[op] syntax, e.g. price[lt]=500.
var opKey = regexp.MustCompile(`^([^\[\]]+)\[([a-z]+)\]$`)

// validName rejects attribute names carrying a '$'. Such a name would reach
// the database as an operator ($where, $expr) instead of a field path.
func validName(name string) bool {
	return name != "" && !strings.Contains(name, "$")
}

var defaultSort = bson.D{{Key: "createdAt", Value: -1}}

var defaultProjection = bson.M{"__v": 0}

// Spec is the executable result of a pipeline.
type Spec struct {
	Filter     bson.M
	Sort       bson.D
	Projection bson.M
	// Fields holds the explicitly selected attributes, in request order.
	// Empty means every attribute not listed in Excluded.
	Fields   []string
	Excluded []string
	Page     int64
	Skip     int64
	// Limit of 0 means unbounded.
	Limit int64
}

// Features is one stage of the pipeline.
type Features struct {
	params   url.Values
	maxLimit int64

	filter     bson.M
	sort       bson.D
	projection bson.M
	fields     []string
	excluded   []string
	page       int64
	skip       int64
	limit      int64
}

// Option configures a pipeline.
type Option func(*Features)

// WithMaxLimit caps the page size a caller may request. Values <= 0 keep
// DefaultMaxLimit.
func WithMaxLimit(n int64) Option {
	return func(f *Features) {
		if n > 0 {
			f.maxLimit = n
		}
	}
}

// New starts a pipeline over a copy of params.
func New(params url.Values, opts ...Option) Features {
	cp := make(url.Values, len(params))
	for k, v := range params {
		cp[k] = append([]string(nil), v...)
	}
	f := Features{params: cp, maxLimit: DefaultMaxLimit, filter: bson.M{}}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Filter turns every non-reserved parameter into a predicate. attr[gte],
// attr[gt], attr[lte] and attr[lt] become range operators; anything else is
// an equality match. Values are coerced to numbers, object ids, booleans or
// dates when they parse as such. When a parameter repeats, the last value wins.
func (f Features) Filter() Features {
	filter := cloneM(f.filter)
	keys := make([]string, 0, len(f.params))
	for key := range f.params {
		keys = append(keys, key)
	}
	// sorted so attr[op] is applied after a bare attr of the same name
	sort.Strings(keys)
	for _, key := range keys {
		values := f.params[key]
		if _, skip := reserved[key]; skip || len(values) == 0 {
			continue
		}
		value := coerce(values[len(values)-1])

		if m := opKey.FindStringSubmatch(key); m != nil {
			op, ok := operators[m[2]]
			if !ok {
				continue
			}
			attr := m[1]
			if !validName(attr) {
				continue
			}
			cond, isCond := filter[attr].(bson.M)
			if !isCond {
				cond = bson.M{}
			} else {
				cond = cloneM(cond)
			}
			cond[op] = value
			filter[attr] = cond
			continue
		}
		if !validName(key) {
			continue
		}
		filter[key] = value
	}
	f.filter = filter
	return f
}

// Scope merges a route-derived predicate (e.g. tour=<id> on nested routes)
// into the filter. Scope predicates override query-string ones.
func (f Features) Scope(extra bson.M) Features {
	if len(extra) == 0 {
		return f
	}
	filter := cloneM(f.filter)
	for k, v := range extra {
		filter[k] = v
	}
	f.filter = filter
	return f
}

// Sort reads a comma separated attribute list; a leading '-' sorts
// descending. Without a sort parameter results are newest first. _id is
// appended as a tie-breaker so pagination windows are stable.
func (f Features) Sort() Features {
	raw := f.params.Get("sort")
	var order bson.D
	for _, part := range splitList(raw) {
		dir := 1
		if strings.HasPrefix(part, "-") {
			dir = -1
			part = strings.TrimPrefix(part, "-")
		}
		if !validName(part) {
			continue
		}
		order = append(order, bson.E{Key: part, Value: dir})
	}
	if len(order) == 0 {
		order = append(bson.D{}, defaultSort...)
	}
	hasID := false
	for _, e := range order {
		if e.Key == "_id" {
			hasID = true
		}
	}
	if !hasID {
		order = append(order, bson.E{Key: "_id", Value: 1})
	}
	f.sort = order
	return f
}

// LimitFields reads a comma separated attribute list into a projection.
// Plain names select; '-' prefixed names exclude and are ignored when any
// name is selected. Without a fields parameter only the internal version
// counter is hidden.
func (f Features) LimitFields() Features {
	var include, exclude []string
	seen := map[string]struct{}{}
	for _, part := range splitList(f.params.Get("fields")) {
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		if strings.HasPrefix(part, "-") {
			if name := strings.TrimPrefix(part, "-"); validName(name) {
				exclude = append(exclude, name)
			}
			continue
		}
		if validName(part) {
			include = append(include, part)
		}
	}

	projection := bson.M{}
	switch {
	case len(include) > 0:
		for _, name := range include {
			projection[name] = 1
		}
		exclude = nil
	case len(exclude) > 0:
		for _, name := range exclude {
			projection[name] = 0
		}
	default:
		projection = cloneM(defaultProjection)
	}

	f.projection = projection
	f.fields = include
	f.excluded = exclude
	return f
}

// Paginate reads page and limit. Missing, non-numeric or non-positive values
// fall back to page 1 and DefaultLimit; limit is capped at the configured
// maximum.
func (f Features) Paginate() Features {
	page := positiveInt(f.params.Get("page"), DefaultPage)
	limit := positiveInt(f.params.Get("limit"), DefaultLimit)
	if limit > f.maxLimit {
		limit = f.maxLimit
	}
	if page > math.MaxInt64/limit {
		page = math.MaxInt64/limit
	}
	f.page = page
	f.limit = limit
	f.skip = (page - 1) * limit
	return f
}

// All applies every stage in the canonical order.
func (f Features) All() Features {
	return f.Filter().Sort().LimitFields().Paginate()
}

// Spec returns the executable query. Stages that were never applied leave
// their part of the Spec empty.
func (f Features) Spec() Spec {
	return Spec{
		Filter:     cloneM(f.filter),
		Sort:       append(bson.D(nil), f.sort...),
		Projection: cloneM(f.projection),
		Fields:     append([]string(nil), f.fields...),
		Excluded:   append([]string(nil), f.excluded...),
		Page:       f.page,
		Skip:       f.skip,
		Limit:      f.limit,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func positiveInt(raw string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// coerce converts a raw query value to the most specific scalar it parses
// as: integer, object id, float, boolean, date, else string.
func coerce(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if oid, err := primitive.ObjectIDFromHex(raw); err == nil {
		return oid
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return raw
}

func cloneM(m bson.M) bson.M {
	if m == nil {
		return nil
	}
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
