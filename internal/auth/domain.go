package auth

import "github.com/libris-hub/libris/internal/users"

// RegisterRequest is the body of POST /accounts/register.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=150,username"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=150,safetext"`
	LastName  string `json:"last_name" validate:"max=150,safetext"`
	Bio       string `json:"bio" validate:"max=500,richtext"`
}

// LoginRequest is the body of POST /accounts/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries an issued API token.
type TokenResponse struct {
	Token string      `json:"token"`
	User  *users.User `json:"user,omitempty"`
}
