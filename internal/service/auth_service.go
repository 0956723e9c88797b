package service

import (
	"context"
	"time"

	"estoque/internal/config"
	"estoque/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// OperatorRole is the only role issued; the store has a single operator.
const OperatorRole = "operator"

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
}

type authService struct {
	cfg *config.Config
	now func() time.Time
}

func NewAuthService(cfg *config.Config) AuthService {
	return &authService{cfg: cfg, now: time.Now}
}

func (s *authService) Login(_ context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	if !s.cfg.AuthEnabled() || s.cfg.OperatorPasswordHash == "" {
		return nil, &UnauthorizedError{}
	}
	if req.Username != s.cfg.OperatorUsername {
		// still pay the bcrypt cost so unknown users are not distinguishable by timing
		_ = bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPasswordHash), []byte(req.Password))
		return nil, &UnauthorizedError{}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPasswordHash), []byte(req.Password)); err != nil {
		log.Warn().Str("username", req.Username).Msg("login rejected")
		return nil, &UnauthorizedError{}
	}

	ttl := time.Duration(s.cfg.JWTExpirationHours) * time.Hour
	token, err := s.generateToken(req.Username, ttl)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.JWTExpirationHours * 3600,
		Username:    req.Username,
	}, nil
}

func (s *authService) generateToken(username string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"username": username,
		"role":     OperatorRole,
		"sub":      username,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
