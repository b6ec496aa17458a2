package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

const defaultPhoto = "default.jpg"

// RoleSet is an allow-list of role tags fixed at route registration time.
type RoleSet map[string]struct{}

// Roles builds a RoleSet from the given tags.
func Roles(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Allows reports whether role is in the set.
func (s RoleSet) Allows(role string) bool {
	_, ok := s[role]
	return ok
}

// User models an account. Credentials and reset state never leave the
// server: they carry json:"-".
type User struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string             `bson:"name" json:"name" validate:"required"`
	Email                string             `bson:"email" json:"email" validate:"required,email"`
	Photo                string             `bson:"photo,omitempty" json:"photo,omitempty"`
	Role                 string             `bson:"role" json:"role" validate:"omitempty,oneof=user guide lead-guide admin"`
	Password             string             `bson:"password,omitempty" json:"-"`
	PasswordChangedAt    *time.Time         `bson:"passwordChangedAt,omitempty" json:"-"`
	PasswordResetToken   string             `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires *time.Time         `bson:"passwordResetExpires,omitempty" json:"-"`
	Active               *bool              `bson:"active,omitempty" json:"-"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
	Version              int                `bson:"__v" json:"__v,omitempty"`
}

// ApplyDefaults fills the attributes a new account starts with.
func (u *User) ApplyDefaults(now time.Time) {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Photo == "" {
		u.Photo = defaultPhoto
	}
	if u.Active == nil {
		active := true
		u.Active = &active
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now.UTC()
	}
}

// Normalize lower-cases the email so the unique index is case-insensitive.
func (u *User) Normalize() {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at iat. Comparison is at second resolution, matching the
// resolution of the token's issued-at claim.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return iat.Unix() < u.PasswordChangedAt.Unix()
}

// Summary is the public projection used when a user is embedded in another
// resource.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
}

// UserSummary is the eager-loaded shape of a user attached to tours,
// reviews and bookings.
type UserSummary struct {
	ID    primitive.ObjectID `bson:"_id" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email,omitempty" json:"email,omitempty"`
	Photo string             `bson:"photo,omitempty" json:"photo,omitempty"`
	Role  string             `bson:"role,omitempty" json:"role,omitempty"`
}
