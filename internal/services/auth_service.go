package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-chat/config"
	"support-chat/internal/domain"
	"support-chat/internal/identity"
	"support-chat/internal/repository"
	chat_errors "support-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// AuthService is the identity provider: sign-up, sign-in, sign-out and
// session introspection over the profiles table, with JWT access tokens.
// Signed-out tokens are denylisted in Redis until they expire.
type AuthService struct {
	profiles  repository.ProfileRepository
	redis     *goredis.Client
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(profiles repository.ProfileRepository, redis *goredis.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		profiles:  profiles,
		redis:     redis,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryMin) * time.Minute,
	}
}

type AuthResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	User        domain.Profile `json:"user"`
}

type AccessClaims struct {
	UserID  string `json:"sub"`
	IsAdmin bool   `json:"adm"`
	jwt.RegisteredClaims
}

func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return AuthResponse{}, &chat_errors.AuthError{Op: "signup", Cause: chat_errors.ErrInvalidInput}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, &chat_errors.AuthError{Op: "signup", Cause: err}
	}

	profile := domain.Profile{Email: email, Name: name}
	if err := s.profiles.Create(ctx, &profile, string(hash)); err != nil {
		return AuthResponse{}, &chat_errors.AuthError{Op: "signup", Cause: err}
	}
	return s.issueToken(profile)
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	profile, hash, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, chat_errors.ErrNotFound) {
			return AuthResponse{}, &chat_errors.AuthError{Op: "signin", Cause: chat_errors.ErrUnauthorized}
		}
		return AuthResponse{}, &chat_errors.AuthError{Op: "signin", Cause: err}
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return AuthResponse{}, &chat_errors.AuthError{Op: "signin", Cause: chat_errors.ErrUnauthorized}
	}
	return s.issueToken(profile)
}

// SignOut revokes the presented token for its remaining lifetime.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := s.parseClaims(token)
	if err != nil {
		return &chat_errors.AuthError{Op: "signout", Cause: err}
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, denylistKey(claims.ID), "1", ttl).Err(); err != nil {
		return &chat_errors.AuthError{Op: "signout", Cause: err}
	}
	return nil
}

// ParseAccessToken validates a token and returns its claims, rejecting
// revoked tokens.
func (s *AuthService) ParseAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	claims, err := s.parseClaims(token)
	if err != nil {
		return nil, chat_errors.ErrUnauthorized
	}
	revoked, err := s.redis.Exists(ctx, denylistKey(claims.ID)).Result()
	if err == nil && revoked > 0 {
		return nil, chat_errors.ErrUnauthorized
	}
	return claims, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	return s.profiles.GetByID(ctx, userID)
}

func (s *AuthService) issueToken(profile domain.Profile) (AuthResponse, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:  profile.ID,
		IsAdmin: profile.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return AuthResponse{}, &chat_errors.AuthError{Op: "token", Cause: err}
	}
	return AuthResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
		User:        profile,
	}, nil
}

func (s *AuthService) parseClaims(token string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, chat_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, chat_errors.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok {
		return nil, chat_errors.ErrUnauthorized
	}
	return claims, nil
}

func denylistKey(tokenID string) string {
	return "auth:denylist:" + tokenID
}

// TokenAuthProvider adapts a bearer token to the identity resolver's
// AuthProvider contract for one request.
type TokenAuthProvider struct {
	Auth  *AuthService
	Token string
}

func (p TokenAuthProvider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if p.Token == "" {
		return nil, nil
	}
	claims, err := p.Auth.ParseAccessToken(ctx, p.Token)
	if err != nil {
		// An invalid or expired token falls back to anonymous rather than
		// failing resolution.
		return nil, nil
	}
	return &identity.Session{UserID: claims.UserID}, nil
}
