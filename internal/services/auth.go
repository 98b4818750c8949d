package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/repos"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*types.User, TokenPair, error)
	Login(ctx context.Context, email, password string) (*types.User, TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	// ValidateAccessToken is the bearer validator: token in, user id out.
	ValidateAccessToken(ctx context.Context, tokenString string) (uuid.UUID, error)
}

type authService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo

	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewAuthService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, jwtSecret string, accessTokenTTL, refreshTokenTTL time.Duration) AuthService {
	return &authService{
		db:              db,
		log:             log.With("service", "AuthService"),
		userRepo:        userRepo,
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*types.User, TokenPair, error) {
	const op = "AuthService.Register"

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, domain.NewError(domain.CodeInvalidInput, op, "a valid email is required", nil)
	}
	if len(input.Password) < 8 {
		return nil, TokenPair{}, domain.NewError(domain.CodeInvalidInput, op, "password must be at least 8 characters", nil)
	}

	exists, err := s.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, TokenPair{}, domain.MapRepoError(op, err)
	}
	if exists {
		return nil, TokenPair{}, domain.NewError(domain.CodeConflict, op, "email is already in use", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, TokenPair{}, domain.Wrap(domain.CodeInternal, op, err)
	}

	user := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
	}
	if _, err := s.userRepo.Create(ctx, nil, user); err != nil {
		return nil, TokenPair{}, domain.MapRepoError(op, err)
	}

	pair, err := s.issueTokens(op, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*types.User, TokenPair, error) {
	const op = "AuthService.Login"

	user, err := s.userRepo.GetByEmail(ctx, nil, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, TokenPair{}, domain.NewError(domain.CodeInvalidInput, op, "invalid email or password", nil)
		}
		return nil, TokenPair{}, domain.MapRepoError(op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, TokenPair{}, domain.NewError(domain.CodeInvalidInput, op, "invalid email or password", nil)
	}

	pair, err := s.issueTokens(op, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "AuthService.Refresh"

	userID, err := s.parseToken(op, refreshToken, "refresh")
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, domain.NewError(domain.CodeNotFound, op, "user not found", err)
		}
		return TokenPair{}, domain.MapRepoError(op, err)
	}
	return s.issueTokens(op, userID)
}

func (s *authService) ValidateAccessToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	return s.parseToken("AuthService.ValidateAccessToken", tokenString, "access")
}

func (s *authService) issueTokens(op string, userID uuid.UUID) (TokenPair, error) {
	access, err := s.signToken(userID, "access", s.accessTokenTTL)
	if err != nil {
		return TokenPair{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	refresh, err := s.signToken(userID, "refresh", s.refreshTokenTTL)
	if err != nil {
		return TokenPair{}, domain.Wrap(domain.CodeInternal, op, err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *authService) signToken(userID uuid.UUID, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"typ": typ,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *authService) parseToken(op, tokenString, wantType string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, domain.NewError(domain.CodeInvalidInput, op, "invalid or expired token", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, domain.NewError(domain.CodeInvalidInput, op, "invalid token claims", nil)
	}
	if typ, _ := claims["typ"].(string); typ != wantType {
		return uuid.Nil, domain.NewError(domain.CodeInvalidInput, op, "wrong token type", nil)
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.NewError(domain.CodeInvalidInput, op, "invalid token subject", err)
	}
	return userID, nil
}
