package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"

	argon2idPrefix = "$argon2id$"
)

// HasherConfig selects the algorithm used for new hashes. Verification
// accepts both algorithms, so switching is safe for existing accounts.
type HasherConfig struct {
	Algorithm string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Concurrency bounds how many hash operations run at once.
	Concurrency int64
}

// PasswordHasher runs CPU-bound hashing on a bounded number of goroutines so
// a burst of logins cannot starve other requests.
type PasswordHasher struct {
	algorithm string
	cost      int
	params    *argon2id.Params
	sem       *semaphore.Weighted
}

func NewPasswordHasher(cfg HasherConfig) *PasswordHasher {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = 4
	}
	algo := cfg.Algorithm
	if algo != HasherArgon2id {
		algo = HasherBcrypt
	}
	return &PasswordHasher{
		algorithm: algo,
		cost:      cost,
		params:    argon2id.DefaultParams,
		sem:       semaphore.NewWeighted(n),
	}
}

func (h *PasswordHasher) Hash(ctx context.Context, plain string) (string, error) {
	var hash string
	err := h.run(ctx, func() error {
		if h.algorithm == HasherArgon2id {
			s, err := argon2id.CreateHash(plain, h.params)
			hash = s
			return err
		}
		b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
		hash = string(b)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Compare dispatches on the stored hash's format.
func (h *PasswordHasher) Compare(ctx context.Context, plain, hash string) (bool, error) {
	var match bool
	err := h.run(ctx, func() error {
		if strings.HasPrefix(hash, argon2idPrefix) {
			ok, err := argon2id.ComparePasswordAndHash(plain, hash)
			match = ok
			return err
		}
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil
		}
		match = err == nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("compare password: %w", err)
	}
	return match, nil
}

// run executes fn on its own goroutine once a slot is free, returning early
// if ctx is cancelled. A cancelled call still lets fn finish in the
// background before releasing its slot.
func (h *PasswordHasher) run(ctx context.Context, fn func() error) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer h.sem.Release(1)
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
