package services

import (
	"context"
	"errors"
	"testing"

	"support-chat/config"
	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

type fakeProfiles struct {
	created   []domain.Profile
	byEmail   map[string]domain.Profile
	hash      string
	createErr error
}

func (p *fakeProfiles) Create(ctx context.Context, profile *domain.Profile, passwordHash string) error {
	if p.createErr != nil {
		return p.createErr
	}
	profile.ID = "user-1"
	p.created = append(p.created, *profile)
	p.hash = passwordHash
	return nil
}

func (p *fakeProfiles) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	return domain.Profile{ID: id}, nil
}

func (p *fakeProfiles) GetByEmail(ctx context.Context, email string) (domain.Profile, string, error) {
	profile, ok := p.byEmail[email]
	if !ok {
		return domain.Profile{}, "", chat_errors.ErrNotFound
	}
	return profile, p.hash, nil
}

func testAuthService(profiles *fakeProfiles) *AuthService {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiryMin: 60}
	return NewAuthService(profiles, nil, cfg)
}

func TestSignUp_IssuesToken(t *testing.T) {
	profiles := &fakeProfiles{}
	svc := testAuthService(profiles)

	resp, err := svc.SignUp(context.Background(), "  User@Example.COM ", "hunter2secret", "Casey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}
	if resp.User.Email != "user@example.com" {
		t.Errorf("expected normalized email, got %q", resp.User.Email)
	}
	if len(profiles.created) != 1 {
		t.Fatalf("expected 1 profile created, got %d", len(profiles.created))
	}

	claims, err := svc.parseClaims(resp.AccessToken)
	if err != nil {
		t.Fatalf("issued token must parse: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("expected user id claim, got %q", claims.UserID)
	}
	if claims.IsAdmin {
		t.Error("fresh signup must not be admin")
	}
}

func TestSignUp_ShortPasswordRejected(t *testing.T) {
	svc := testAuthService(&fakeProfiles{})

	_, err := svc.SignUp(context.Background(), "user@example.com", "short", "")
	var authErr *chat_errors.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T", err)
	}
	if !errors.Is(err, chat_errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput in the chain, got %v", err)
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	profiles := &fakeProfiles{createErr: chat_errors.ErrAlreadyExists}
	svc := testAuthService(profiles)

	_, err := svc.SignUp(context.Background(), "user@example.com", "hunter2secret", "")
	if !errors.Is(err, chat_errors.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists in the chain, got %v", err)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	profiles := &fakeProfiles{
		byEmail: map[string]domain.Profile{"user@example.com": {ID: "user-1", Email: "user@example.com"}},
		hash:    string(hash),
	}
	svc := testAuthService(profiles)

	_, err := svc.SignIn(context.Background(), "user@example.com", "wrong-password")
	if !errors.Is(err, chat_errors.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSignIn_UnknownEmailIndistinguishable(t *testing.T) {
	svc := testAuthService(&fakeProfiles{byEmail: map[string]domain.Profile{}})

	_, err := svc.SignIn(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, chat_errors.ErrUnauthorized) {
		t.Errorf("unknown email must look like bad credentials, got %v", err)
	}
}

func TestSignIn_Success(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	profiles := &fakeProfiles{
		byEmail: map[string]domain.Profile{"admin@example.com": {ID: "admin-1", Email: "admin@example.com", IsAdmin: true}},
		hash:    string(hash),
	}
	svc := testAuthService(profiles)

	resp, err := svc.SignIn(context.Background(), "admin@example.com", "correct-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := svc.parseClaims(resp.AccessToken)
	if err != nil {
		t.Fatalf("issued token must parse: %v", err)
	}
	if !claims.IsAdmin {
		t.Error("admin flag must be carried in the token")
	}
}

func TestParseClaims_RejectsForgedToken(t *testing.T) {
	svc := testAuthService(&fakeProfiles{})
	other := NewAuthService(&fakeProfiles{}, nil, &config.Config{JWTSecret: "other-secret", JWTExpiryMin: 60})

	resp, err := other.SignUp(context.Background(), "user@example.com", "hunter2secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.parseClaims(resp.AccessToken); err == nil {
		t.Error("token signed with a different secret must be rejected")
	}
}
