package users

import (
	"time"

	"github.com/libris-hub/libris/internal/rbac"
)

// User is an account joined with its profile.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profile_picture"`
	Role           rbac.Role `json:"role"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`

	PasswordHash string `json:"-"`
	IsActive     bool   `json:"-"`
	// HasProfile is false for accounts whose profile row is missing.
	HasProfile bool `json:"-"`
}

// Identity converts the account into the caller identity used by authorization.
func (u *User) Identity() rbac.Identity {
	return rbac.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// Summary is the short form of a user used in follow lists.
type Summary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// NewAccount carries the fields of a registration.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Bio          string
	Role         rbac.Role
}

// ProfileUpdate lists profile fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Email          *string `json:"email" validate:"omitempty,email,max=254"`
	FirstName      *string `json:"first_name" validate:"omitempty,max=150,safetext"`
	LastName       *string `json:"last_name" validate:"omitempty,max=150,safetext"`
	Bio            *string `json:"bio" validate:"omitempty,max=500,richtext"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,url,max=500"`
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil && p.Bio == nil && p.ProfilePicture == nil
}

// RoleChange is the body of the role assignment endpoint.
type RoleChange struct {
	Role string `json:"role" validate:"oneof=Admin Librarian Member ''"`
}

// FollowResult reports the outcome of a follow or unfollow.
type FollowResult struct {
	Message string `json:"message"`
	// Created is false when the edge already existed.
	Created bool `json:"created"`
}
