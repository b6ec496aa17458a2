package ports

import (
	"context"
	"time"

	"github.com/natours/tours-api/internal/core/domain"
)

// SignupInput holds the allow-listed sign-up attributes.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// Session is a freshly issued credential.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// AuthService drives sign-up, login and the request authentication state
// machine.
type AuthService interface {
	Signup(ctx context.Context, in SignupInput, welcomeURL string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	// Authenticate verifies a raw token and resolves its current user.
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
	// ForgotPassword stores a reset token and mails the URL built by resetURL.
	ForgotPassword(ctx context.Context, email string, resetURL func(token string) string) error
	ResetPassword(ctx context.Context, token, password, passwordConfirm string) (*Session, error)
	UpdatePassword(ctx context.Context, userID, current, password, passwordConfirm string) (*Session, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Compare(ctx context.Context, plain, hash string) (bool, error)
}

// TokenDenylist records revoked session tokens by their jti.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Mailer delivers account emails. url is the link the message points to.
type Mailer interface {
	SendWelcome(ctx context.Context, user *domain.User, url string) error
	SendPasswordReset(ctx context.Context, user *domain.User, url string) error
}
