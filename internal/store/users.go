// ABOUTME: User persistence for the SQLite store
// ABOUTME: Minimal account rows with bcrypt password hashing helpers

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateEmail is returned when creating a user with an email that is taken
var ErrDuplicateEmail = errors.New("email already registered")

// HashPassword produces a bcrypt hash for storage in User.PasswordHash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateUser inserts a new user row
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, formatTime(user.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.queryUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.queryUser(ctx, "email = ?", email)
}

func (s *SQLiteStore) queryUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	query := `
		SELECT id, email, display_name, COALESCE(password_hash, ''), created_at
		FROM users WHERE ` + where

	var user User
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &user, nil
}
