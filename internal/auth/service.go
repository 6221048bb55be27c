package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/internal/users"
	"github.com/libris-hub/libris/internal/validation"
)

// Accounts is the slice of the users service auth depends on.
type Accounts interface {
	CreateAccount(ctx context.Context, acc users.NewAccount) (*users.User, error)
	Credentials(ctx context.Context, username string) (*users.User, error)
}

// Tokens issues and revokes API tokens.
type Tokens interface {
	Issue(ctx context.Context, userID int64, userAgent string) (*shared.Session, error)
	Revoke(ctx context.Context, sess *shared.Session) error
}

// Mailer queues the welcome mail of a new account.
type Mailer interface {
	EnqueueWelcome(ctx context.Context, email, username string) error
}

// Service wraps authentication business rules.
type Service struct {
	accounts  Accounts
	tokens    Tokens
	mailer    Mailer
	validator *validation.Validator
	logger    *slog.Logger
	cost      int
}

// NewService constructs a new Service. mailer may be nil.
func NewService(accounts Accounts, tokens Tokens, mailer Mailer, v *validation.Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, tokens: tokens, mailer: mailer, validator: v, logger: logger, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register creates the account with the Member role and issues its first token.
func (s *Service) Register(ctx context.Context, req RegisterRequest, userAgent string) (*TokenResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, shared.FieldError("password", "ensure this field has no more than 72 bytes")
		}
		return nil, err
	}
	user, err := s.accounts.CreateAccount(ctx, users.NewAccount{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Bio:          req.Bio,
		Role:         rbac.RoleMember,
	})
	if err != nil {
		return nil, err
	}
	sess, err := s.tokens.Issue(ctx, user.ID, userAgent)
	if err != nil {
		return nil, err
	}
	if s.mailer != nil {
		if err := s.mailer.EnqueueWelcome(ctx, user.Email, user.Username); err != nil {
			s.logger.Warn("enqueue welcome mail", slog.Int64("user_id", user.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("account registered", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	return &TokenResponse{Token: sess.Token, User: user}, nil
}

// Login validates username/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest, userAgent string) (*TokenResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	user, err := s.accounts.Credentials(ctx, req.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	sess, err := s.tokens.Issue(ctx, user.ID, userAgent)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: sess.Token}, nil
}

// Logout revokes the token of the current session.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) error {
	if sess == nil {
		return shared.ErrUnauthenticated
	}
	return s.tokens.Revoke(ctx, sess)
}
