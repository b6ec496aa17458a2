package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const (
	defaultTokenTTL   = 90 * 24 * time.Hour
	resetTokenTTL     = 10 * time.Minute
	resetTokenBytes   = 32
	minPasswordLength = 8
)

// Client-facing failure messages.
const (
	MsgMissingCredentials = "Please provide email and password!"
	MsgIncorrectLogin     = "Incorrect email or password"
	MsgInvalidToken       = "Invalid token. Please log in again!"
	MsgExpiredToken       = "Your token has expired! Please log in again."
	MsgRevokedToken       = "This session has been logged out. Please log in again."
	MsgUserGone           = "The user belonging to this token does no longer exist."
	MsgPasswordChanged    = "User recently changed password! Please log in again."
	MsgNoUserWithEmail    = "There is no user with that email address."
	MsgResetInvalid       = "Token is invalid or has expired"
	MsgWrongPassword      = "Your current password is wrong."
	MsgEmailFailed        = "There was an error sending the email. Try again later!"
)

// AuthConfig carries the token signing settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// AuthService issues and verifies session tokens and runs the password
// lifecycle (sign-up, change, reset).
type AuthService struct {
	users    ports.UserRepository
	hasher   ports.PasswordHasher
	mailer   ports.Mailer
	denylist ports.TokenDenylist
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithDenylist enables server-side revocation on logout.
func WithDenylist(d ports.TokenDenylist) AuthOption {
	return func(s *AuthService) { s.denylist = d }
}

func NewAuthService(
	users ports.UserRepository,
	hasher ports.PasswordHasher,
	mailer ports.Mailer,
	cfg AuthConfig,
	log zerolog.Logger,
	opts ...AuthOption,
) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	s := &AuthService{
		users:    users,
		hasher:   hasher,
		mailer:   mailer,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates a regular user account from the allow-listed attributes
// and signs it in. The role is always "user".
func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput, welcomeURL string) (*ports.Session, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.FieldValidation("name", "Please tell us your name!")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := checkNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Role:     domain.RoleUser,
		Password: hash,
	}
	user.ApplyDefaults(s.now())
	user.Normalize()

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendWelcome(ctx, created, welcomeURL); err != nil {
		s.log.Warn().Err(err).Str("user_id", created.ID.Hex()).Msg("welcome email not sent")
	}

	s.log.Info().Str("user_id", created.ID.Hex()).Msg("user signed up")
	return s.issue(created)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, domain.Validation(MsgMissingCredentials)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorized(MsgIncorrectLogin)
		}
		return nil, err
	}

	ok, err := s.hasher.Compare(ctx, password, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Unauthorized(MsgIncorrectLogin)
	}
	return s.issue(user)
}

// Authenticate walks a raw token through verification, revocation, user
// resolution and the password freshness check.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		switch {
		case err != nil:
			// revocation is best effort; the signature already checked out
			s.log.Warn().Err(err).Msg("token denylist unavailable")
		case revoked:
			return nil, domain.Unauthorized(MsgRevokedToken)
		}
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorized(MsgUserGone)
		}
		return nil, err
	}

	if user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, domain.Unauthorized(MsgPasswordChanged)
	}
	return user, nil
}

// Logout revokes the token until its natural expiry. Tokens that no longer
// verify need no revocation, and a denylist failure is logged rather than
// surfaced: the client-side cookie is cleared either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if s.denylist == nil || token == "" {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil || claims.ID == "" {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.denylist.Revoke(ctx, claims.ID, ttl); err != nil {
		s.log.Warn().Err(err).Str("user_id", claims.Subject).Msg("token revocation failed")
	}
	return nil
}

// ForgotPassword stores the hash of a fresh reset token and mails the raw
// token. If the email cannot be sent the token is withdrawn again.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, resetURL func(token string) string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound(MsgNoUserWithEmail)
		}
		return err
	}

	raw, hashed, err := newResetToken()
	if err != nil {
		return err
	}
	id := user.ID.Hex()
	if err := s.users.SetResetToken(ctx, id, hashed, s.now().Add(resetTokenTTL)); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, user, resetURL(raw)); err != nil {
		s.log.Error().Err(err).Str("user_id", id).Msg("password reset email failed")
		if clearErr := s.users.ClearResetToken(ctx, id); clearErr != nil {
			s.log.Error().Err(clearErr).Str("user_id", id).Msg("reset token not cleared")
		}
		return domain.Unexpected(MsgEmailFailed)
	}
	return nil
}

// ResetPassword completes a reset. Wrong and expired tokens fail the same
// way, and a token works only once.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, passwordConfirm string) (*ports.Session, error) {
	if token == "" {
		return nil, domain.Validation(MsgResetInvalid)
	}
	// the new password is checked and hashed before the token is spent
	hash, err := s.newPasswordHash(ctx, password, passwordConfirm)
	if err != nil {
		return nil, err
	}
	user, err := s.users.ClaimResetToken(ctx, hashResetToken(token), s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation(MsgResetInvalid)
		}
		return nil, err
	}
	if err := s.storePassword(ctx, user, hash); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, password, passwordConfirm string) (*ports.Session, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Compare(ctx, current, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Unauthorized(MsgWrongPassword)
	}
	if err := s.setPassword(ctx, user, password, passwordConfirm); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// setPassword stamps passwordChangedAt one second in the past so a token
// issued right after the change is not considered stale.
func (s *AuthService) setPassword(ctx context.Context, user *domain.User, password, passwordConfirm string) error {
	hash, err := s.newPasswordHash(ctx, password, passwordConfirm)
	if err != nil {
		return err
	}
	return s.storePassword(ctx, user, hash)
}

func (s *AuthService) newPasswordHash(ctx context.Context, password, passwordConfirm string) (string, error) {
	if err := checkNewPassword(password, passwordConfirm); err != nil {
		return "", err
	}
	return s.hasher.Hash(ctx, password)
}

func (s *AuthService) storePassword(ctx context.Context, user *domain.User, hash string) error {
	changedAt := s.now().Add(-time.Second)
	if err := s.users.SetPassword(ctx, user.ID.Hex(), hash, changedAt); err != nil {
		return err
	}
	user.Password = hash
	user.PasswordChangedAt = &changedAt
	user.PasswordResetToken = ""
	user.PasswordResetExpires = nil
	return nil
}

func (s *AuthService) issue(user *domain.User) (*ports.Session, error) {
	now := s.now()
	exp := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &ports.Session{Token: signed, ExpiresAt: exp, User: user}, nil
}

func (s *AuthService) parse(token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.Unauthorized(MsgExpiredToken)
		}
		return nil, domain.Unauthorized(MsgInvalidToken)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, domain.Unauthorized(MsgInvalidToken)
	}
	return &claims, nil
}

func checkNewPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return domain.FieldValidation("password", fmt.Sprintf("Password must have at least %d characters", minPasswordLength))
	}
	if password != confirm {
		return domain.FieldValidation("passwordConfirm", "Passwords are not the same!")
	}
	return nil
}

// newResetToken returns a random token and the hash that is persisted.
func newResetToken() (raw, hashed string, err error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("reset token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, hashResetToken(raw), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
