package services_test

import (
	"testing"
	"time"

	"github.com/scriptdeck/scriptdeck/internal/config"
	"github.com/scriptdeck/scriptdeck/internal/services"
)

func testAuth(t *testing.T) *services.AuthService {
	t.Helper()

	cfg := &config.Config{
		Auth:  config.AuthConfig{SessionDuration: "1h", BcryptCost: 4},
		Admin: config.AdminConfig{Username: "admin", Password: "secret"},
	}
	return services.NewAuthService(setupTestDB(t), cfg)
}

func TestAuth_EnsureAdminUserAndLogin(t *testing.T) {
	auth := testAuth(t)

	if err := auth.EnsureAdminUser(); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}
	// A second call updates the existing account instead of failing.
	if err := auth.EnsureAdminUser(); err != nil {
		t.Fatalf("second ensure admin failed: %v", err)
	}

	sessionID, user, err := auth.Login("admin", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if sessionID == "" {
		t.Error("expected session id")
	}
	if user.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", user.Username)
	}
}

func TestAuth_LoginRejectsBadCredentials(t *testing.T) {
	auth := testAuth(t)
	if err := auth.EnsureAdminUser(); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}

	if _, _, err := auth.Login("admin", "wrong"); err != services.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := auth.Login("nobody", "secret"); err != services.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuth_SessionLifecycle(t *testing.T) {
	auth := testAuth(t)
	if err := auth.EnsureAdminUser(); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}

	sessionID, _, err := auth.Login("admin", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	user, err := auth.ValidateSession(sessionID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if user.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", user.Username)
	}

	if err := auth.Logout(sessionID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := auth.ValidateSession(sessionID); err != services.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestAuth_ExpiredSessionIsDeleted(t *testing.T) {
	db := setupTestDB(t)
	cfg := &config.Config{
		Auth:  config.AuthConfig{SessionDuration: "1h", BcryptCost: 4},
		Admin: config.AdminConfig{Username: "admin", Password: "secret"},
	}
	auth := services.NewAuthService(db, cfg)
	if err := auth.EnsureAdminUser(); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}

	sessionID, _, err := auth.Login("admin", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Backdate the expiry.
	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", past, sessionID); err != nil {
		t.Fatalf("failed to backdate session: %v", err)
	}

	if _, err := auth.ValidateSession(sessionID); err != services.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// The expired session row is gone.
	if _, err := auth.ValidateSession(sessionID); err != services.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound on second lookup, got %v", err)
	}
}
