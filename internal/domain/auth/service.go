package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/pkg/jwt"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/password"
)

// CreditGranter is the part of the credit ledger registration needs.
type CreditGranter interface {
	GrantTx(ctx context.Context, tx *sqlx.Tx, in credit.GrantInput) (*credit.Result, error)
	NotifyBalance(ctx context.Context, userID uuid.UUID)
}

// SignupBonus configures the free credits granted on registration.
type SignupBonus struct {
	Credits int
	TTL     time.Duration
}

// Service handles authentication business logic
type Service struct {
	userRepo   user.Repository
	credits    CreditGranter
	jwtService *jwt.Service
	tokens     TokenStore
	bonus      SignupBonus
	now        func() time.Time
}

// NewService creates auth service
func NewService(userRepo user.Repository, credits CreditGranter, jwtService *jwt.Service, tokens TokenStore, bonus SignupBonus) *Service {
	return &Service{
		userRepo:   userRepo,
		credits:    credits,
		jwtService: jwtService,
		tokens:     tokens,
		bonus:      bonus,
		now:        time.Now,
	}
}

// Register creates a new account and grants the signup bonus in the same
// transaction.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
	}

	err = s.userRepo.Create(ctx, u, func(tx *sqlx.Tx) error {
		if s.bonus.Credits <= 0 {
			return nil
		}
		expires := s.now().Add(s.bonus.TTL)
		_, err := s.credits.GrantTx(ctx, tx, credit.GrantInput{
			UserID:      u.ID,
			Amount:      s.bonus.Credits,
			Type:        credit.TxTypeBonus,
			Source:      credit.SourceFree,
			ExpiresAt:   &expires,
			Description: "Signup bonus",
			ReferenceID: "signup:" + u.ID.String(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	if s.bonus.Credits > 0 {
		s.credits.NotifyBalance(ctx, u.ID)
	}

	logger.LogInfo(ctx, "user registered", "user_id", u.ID.String())
	return s.generateTokens(ctx, u)
}

// Login authenticates user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	u, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if u.IsBanned {
		return nil, ErrUserBanned
	}

	return s.generateTokens(ctx, u)
}

// Refresh rotates a refresh token: the old one is consumed and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	userID, err := s.tokens.Take(ctx, jwt.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh lookup: %w", err)
	}
	if userID != claims.UserID {
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if u.IsBanned {
		return nil, ErrUserBanned
	}

	return s.generateTokens(ctx, u)
}

// Logout invalidates refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.Delete(ctx, jwt.HashRefreshToken(refreshToken))
}

// GetCurrentUser returns current user by ID
func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	resp := NewUserResponse(u)
	return &resp, nil
}

// generateTokens creates access and refresh tokens
func (s *Service) generateTokens(ctx context.Context, u *user.User) (*AuthResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(u.ID, u.IsBanned)
	if err != nil {
		return nil, err
	}

	refreshToken, _, _, err := s.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Save(ctx, jwt.HashRefreshToken(refreshToken), u.ID, s.jwtService.GetRefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{
		User: NewUserResponse(u),
		Tokens: TokensResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(s.jwtService.GetAccessTTL().Seconds()),
			TokenType:    "Bearer",
		},
	}, nil
}
