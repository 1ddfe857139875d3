package services

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/scriptdeck/scriptdeck/internal/config"
	"github.com/scriptdeck/scriptdeck/internal/database"
	"github.com/scriptdeck/scriptdeck/internal/models"
)

var (
	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired indicates the session exists but is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionNotFound indicates no session with the given id.
	ErrSessionNotFound = errors.New("session not found")
)

// AuthService manages the bootstrap admin account and login sessions. There
// is deliberately no user management: the dashboard has a single operator
// account configured at startup.
type AuthService struct {
	db  *database.DB
	cfg *config.Config
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(db *database.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

// EnsureAdminUser creates or updates the admin account from configuration.
func (s *AuthService) EnsureAdminUser() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.Admin.Password), s.cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	var id int64
	err = s.db.QueryRow("SELECT id FROM users WHERE username = ?", s.cfg.Admin.Username).Scan(&id)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(
			"INSERT INTO users (username, password_hash) VALUES (?, ?)",
			s.cfg.Admin.Username, string(hash),
		)
		if err == nil {
			log.Printf("[Auth] Created admin user %q", s.cfg.Admin.Username)
		}
		return err
	}
	if err != nil {
		return err
	}

	_, err = s.db.Exec("UPDATE users SET password_hash = ? WHERE id = ?", string(hash), id)
	return err
}

// Login checks credentials and creates a session.
func (s *AuthService) Login(username, password string) (string, *models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	expiresAt := time.Now().Add(s.cfg.Auth.GetSessionDuration())
	_, err = s.db.Exec(
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		sessionID, user.ID, expiresAt.UTC(),
	)
	if err != nil {
		return "", nil, err
	}

	return sessionID, &user, nil
}

// ValidateSession resolves a session id to its user, deleting it if expired.
func (s *AuthService) ValidateSession(sessionID string) (*models.User, error) {
	var user models.User
	var expiresAt time.Time

	err := s.db.QueryRow(`
		SELECT u.id, u.username, u.password_hash, u.created_at, s.expires_at
		FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.id = ?
	`, sessionID).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(expiresAt) {
		_, _ = s.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
		return nil, ErrSessionExpired
	}

	return &user, nil
}

// Logout deletes a session.
func (s *AuthService) Logout(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}
