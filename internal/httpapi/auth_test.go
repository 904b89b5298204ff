package httpapi

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s not found", username)
	}
	return &user, nil
}

func newUserStoreStub(t *testing.T, username, password, role string) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			username: {
				ID:        "user-" + username,
				Username:  username,
				Password:  string(hash),
				Role:      role,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestLoginIssuesTokenWithIdentityClaims(t *testing.T) {
	store := newUserStoreStub(t, "manager", "topsecret1", domain.RoleManager)
	manager := NewAuthManager("test-secret", time.Hour, "123456", store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "manager",
		Password: "topsecret1",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.UserID != "user-manager" || resp.Role != domain.RoleManager {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != "user-manager" || actor.Username != "manager" || actor.Role != domain.RoleManager {
		t.Fatalf("token claims did not round-trip: %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newUserStoreStub(t, "cashier", "rightpass1", domain.RoleCashier)
	manager := NewAuthManager("test-secret", time.Hour, "123456", store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "cashier",
		Password: "wrongpass",
	}); err == nil {
		t.Fatal("expected login to fail with wrong password")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := newUserStoreStub(t, "cashier", "rightpass1", domain.RoleCashier)
	user := store.users["cashier"]
	user.Active = false
	store.users["cashier"] = user

	manager := NewAuthManager("test-secret", time.Hour, "123456", store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "cashier",
		Password: "rightpass1",
	}); err == nil {
		t.Fatal("expected login to fail for inactive account")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	store := newUserStoreStub(t, "manager", "topsecret1", domain.RoleManager)
	issuer := NewAuthManager("secret-a", time.Hour, "123456", store)
	verifier := NewAuthManager("secret-b", time.Hour, "123456", store)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{
		Username: "manager",
		Password: "topsecret1",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := newUserStoreStub(t, "manager", "topsecret1", domain.RoleManager)
	manager := NewAuthManager("test-secret", time.Hour, "654321", store)

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
	if manager.ValidateManagerPIN("") {
		t.Fatalf("expected empty pin to fail")
	}
}
