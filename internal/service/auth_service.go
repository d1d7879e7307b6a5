package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// AuthService issues and checks opaque API tokens.
type AuthService struct {
	db         store.DB
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(db store.DB) *AuthService {
	return &AuthService{db: db, bcryptCost: bcrypt.DefaultCost, logger: util.GetLogger()}
}

type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  *models.User
	Token string
}

// Register creates a user with an empty profile and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	token := &models.AuthToken{Key: NewAuthToken()}

	err = s.db.WithTx(ctx, func(r store.Repository) error {
		if err := r.CreateUser(ctx, user); err != nil {
			return conflictAs(err, "a user with this username already exists")
		}
		if err := r.UpsertProfile(ctx, &models.UserProfile{UserID: user.ID}); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		token.UserID = user.ID
		if err := r.CreateToken(ctx, token); err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return &Session{User: user, Token: token.Key}, nil
}

// Login exchanges credentials for a new token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	token := &models.AuthToken{Key: NewAuthToken(), UserID: user.ID}
	if err := s.db.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return &Session{User: user, Token: token.Key}, nil
}

// Logout deletes the token. Failures are logged and not reported.
func (s *AuthService) Logout(ctx context.Context, token string) {
	ctx, span := util.StartSpan(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.db.DeleteToken(ctx, token); err != nil {
		s.logger.Warn("Failed to delete auth token", zap.Error(err))
	}
}

// Authenticate resolves a token to its active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperr.Unauthorized("authentication credentials were not provided")
	}
	user, err := s.db.GetUserByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return user, nil
}
