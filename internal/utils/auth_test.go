package utils

import (
	"testing"

	"github.com/voltlink-io/onboardflow/internal/models"
)

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}
	if len(hash) == 0 {
		t.Error("Hash should not be empty")
	}

	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}

	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}

func TestJWT(t *testing.T) {
	secret := "test-secret-key-12345"

	user := &models.UserAuth{
		ID:    "uuid-1234",
		Email: "test@example.com",
		Role:  models.RoleAdmin,
	}

	accessToken, refreshToken, err := GenerateTokens(user, secret)
	if err != nil {
		t.Fatalf("Failed to generate tokens: %v", err)
	}
	if accessToken == "" || refreshToken == "" {
		t.Error("Tokens should not be empty")
	}

	claims, err := ValidateToken(accessToken, secret)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims["id"] != "uuid-1234" {
		t.Errorf("Expected id uuid-1234, got %v", claims["id"])
	}
	if claims["role"] != "ADMIN" {
		t.Errorf("Expected role ADMIN, got %v", claims["role"])
	}

	if _, err := ValidateToken(accessToken, "wrong-secret"); err == nil {
		t.Error("Validation should fail with the wrong secret")
	}
	if _, err := ValidateToken("not-a-token", secret); err == nil {
		t.Error("Validation should fail for garbage input")
	}
}
