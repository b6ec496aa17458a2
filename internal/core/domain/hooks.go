package domain

import "time"

// Defaulter is implemented by entities that fill defaults before their
// first insert.
type Defaulter interface {
	ApplyDefaults(now time.Time)
}

// Normalizer is implemented by entities whose attributes are canonicalised
// on every write (slugs, lower-cased emails).
type Normalizer interface {
	Normalize()
}

// Hydrator is implemented by entities with derived, non-persisted
// attributes computed after a read.
type Hydrator interface {
	Hydrate()
}
