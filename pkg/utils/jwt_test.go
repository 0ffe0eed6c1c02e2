package utils

import (
	"testing"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	tok, err := svc.IssueSessionToken(&models.User{ID: "u1", Email: "a@b.edu", Name: "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.ValidateSessionToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "a@b.edu" || claims.Name != "Ada" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	issuer := NewJWTService("secret-a", time.Hour)
	tok, _ := issuer.IssueSessionToken(&models.User{ID: "u1", Email: "a@b.edu"})

	if _, err := NewJWTService("secret-b", time.Hour).ValidateSessionToken(tok); err == nil {
		t.Fatalf("expected signature failure")
	}

	expired := NewJWTService("secret-a", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.IssueSessionToken(&models.User{ID: "u1", Email: "a@b.edu"})
	if _, err := issuer.ValidateSessionToken(old); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
