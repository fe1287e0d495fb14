// Package store holds the persistence boundaries of the advisory backend:
// per-user context documents, outstanding OTP records and the user directory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for the key.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("store: duplicate key")
)

// ContextPatch is the set of changes applied by one UpsertMerge call.
// Nil fields are left untouched on existing documents and written as null on insert.
type ContextPatch struct {
	Profile models.Profile
	// ReplaceProfile writes all four profile fields, nils included.
	ReplaceProfile bool
	Location       *models.Location
	Weather        *models.WeatherSnapshot
}

// DocumentStore persists one UserContext per user id. Every method is a
// single atomic operation on one document.
type DocumentStore interface {
	FindOne(ctx context.Context, userID string) (*models.UserContext, error)
	// UpsertMerge applies patch, creating the document if absent, and returns the result.
	UpsertMerge(ctx context.Context, userID string, patch ContextPatch, now time.Time) (*models.UserContext, error)
	// AtomicAppendCapped appends items and keeps only the last limit entries.
	AtomicAppendCapped(ctx context.Context, userID string, items []models.ChatEntry, limit int, now time.Time) (*models.UserContext, error)
	Delete(ctx context.Context, userID string) error
}

// profileFields lists the profile values by their stored field name.
func profileFields(p models.Profile) []struct {
	name  string
	value *string
} {
	return []struct {
		name  string
		value *string
	}{
		{"name", p.Name},
		{"email", p.Email},
		{"phone", p.Phone},
		{"preferred_language", p.PreferredLanguage},
	}
}
