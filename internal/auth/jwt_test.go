package auth_test

import (
	"errors"
	"testing"
	"time"

	"whiteboard-backend/internal/auth"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	manager := auth.NewJWTManager("test-secret-key", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken(42, "alice@example.com", "alice")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("userID: got %d, want 42", claims.UserID)
	}
	if claims.Nickname != "alice" {
		t.Errorf("nickname: got %q, want alice", claims.Nickname)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("email: got %q", claims.Email)
	}
	if claims.Issuer != "whiteboard-api" {
		t.Errorf("issuer: got %q", claims.Issuer)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := auth.NewJWTManager("secret-a", 15*time.Minute, 24*time.Hour)
	verifier := auth.NewJWTManager("secret-b", 15*time.Minute, 24*time.Hour)

	token, err := issuer.GenerateAccessToken(1, "a@b.c", "a")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := verifier.ValidateAccessToken(token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := auth.NewJWTManager("test-secret-key", 15*time.Minute, 24*time.Hour)

	for _, token := range []string{"", "not.a.jwt", "a.b"} {
		if _, err := manager.ValidateAccessToken(token); !errors.Is(err, auth.ErrInvalidToken) {
			t.Errorf("token %q: want ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := auth.NewJWTManager("test-secret-key", -1*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken(1, "a@b.c", "a")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := manager.ValidateAccessToken(token); !errors.Is(err, auth.ErrExpiredToken) {
		t.Errorf("want ErrExpiredToken, got %v", err)
	}
}
