package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/config"
	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/repository"
	"github.com/orbital-labs/orbital/internal/util"
)

// AuthService owns users and the sessions behind both access tokens and
// portal cookies. Raw tokens are returned to the caller once and only their
// sha256 hashes are persisted.
type AuthService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

func NewAuthService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

func (s *AuthService) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	if email == "" {
		return nil, apperrors.MissingRequired("email")
	}
	if len(password) < 8 {
		return nil, apperrors.InvalidInput("password", "must be at least 8 characters")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("User")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, model.CreateUserParams{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("userId", user.ID).Msg("user registered")
	return user, nil
}

// Login verifies the password and issues a fresh session. The second return
// value is the raw session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", apperrors.Unauthorized("Invalid email or password")
	}

	token, _, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// CreateSession issues a session for the user and returns the raw token.
func (s *AuthService) CreateSession(ctx context.Context, userID string) (string, *model.Session, error) {
	token, err := util.GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		UserID:    userID,
		TokenHash: util.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(config.SessionLifetime),
	})
	if err != nil {
		return "", nil, apperrors.Database(err)
	}

	log.Debug().Str("userId", userID).Str("sessionId", session.ID).Msg("session created")
	return token, session, nil
}

// UserForToken resolves a raw access token to its user. Unknown and expired
// tokens both come back as NotAuthenticated.
func (s *AuthService) UserForToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperrors.NotAuthenticated()
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, util.HashToken(token))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotAuthenticated()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotAuthenticated()
	}
	return user, nil
}

// Logout revokes the session behind the raw token. Revoking an unknown
// token is not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByTokenHash(ctx, util.HashToken(token)); err != nil {
		return apperrors.Database(err)
	}
	return nil
}
