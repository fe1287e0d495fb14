package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/lib/pq"
)

// UserDirectory maps login emails to registered identities.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	Create(ctx context.Context, identity models.Identity) error
}

// PostgresUserDirectory reads and writes the users table.
type PostgresUserDirectory struct {
	db *sql.DB
}

func NewPostgresUserDirectory(db *sql.DB) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

func (d *PostgresUserDirectory) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var id models.Identity
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at FROM users WHERE email = $1
	`, strings.ToLower(email)).Scan(&id.ID, &id.Email, &id.Name, &id.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Transient("failed to look up user", err)
	}
	return &id, nil
}

func (d *PostgresUserDirectory) Create(ctx context.Context, identity models.Identity) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4)
	`, identity.ID, strings.ToLower(identity.Email), identity.Name, identity.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return apperr.Transient("failed to create user", err)
	}
	return nil
}

// MemoryUserDirectory is the in-process directory used without Postgres.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]models.Identity
}

func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{users: make(map[string]models.Identity)}
}

func (d *MemoryUserDirectory) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &id, nil
}

func (d *MemoryUserDirectory) Create(_ context.Context, identity models.Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(identity.Email)
	if _, ok := d.users[key]; ok {
		return ErrDuplicate
	}
	identity.Email = key
	d.users[key] = identity
	return nil
}
