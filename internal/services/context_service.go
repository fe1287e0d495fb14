package services

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/AnshRaj112/krishi-advisor-backend/pkg/utils"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// LocationUpdate is the loosely shaped body of a location/weather write.
type LocationUpdate struct {
	Profile  *models.Profile `json:"profile,omitempty"`
	Location map[string]any  `json:"location,omitempty"`
	Weather  map[string]any  `json:"weather,omitempty"`
}

// ContextService owns the per-user context aggregate and its chat window.
type ContextService struct {
	store  store.DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

type ContextOption func(*ContextService)

// WithContextClock overrides the time source.
func WithContextClock(now func() time.Time) ContextOption {
	return func(s *ContextService) { s.now = now }
}

func NewContextService(ds store.DocumentStore, logger *zap.Logger, opts ...ContextOption) *ContextService {
	s := &ContextService{store: ds, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureExists creates the context if absent. On an existing context only the
// supplied profile fields change.
func (s *ContextService) EnsureExists(ctx context.Context, userID string, profile models.Profile) (*models.UserContext, error) {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	clean, err := models.SanitizeProfile(profile)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, id, store.ContextPatch{Profile: clean})
}

// ReplaceProfile writes all four profile fields. Used at signup.
func (s *ContextService) ReplaceProfile(ctx context.Context, userID string, profile models.Profile) (*models.UserContext, error) {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	clean, err := models.SanitizeProfile(profile)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, id, store.ContextPatch{Profile: clean, ReplaceProfile: true})
}

// UpdateLocationAndWeather applies whatever meaningful location and weather the
// payload carries. Empty payloads leave the stored values in place.
func (s *ContextService) UpdateLocationAndWeather(ctx context.Context, userID string, update LocationUpdate) (*models.UserContext, error) {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var patch store.ContextPatch
	if update.Profile != nil {
		if patch.Profile, err = models.SanitizeProfile(*update.Profile); err != nil {
			return nil, err
		}
	}
	if patch.Location, err = models.NormalizeLocation(update.Location, now); err != nil {
		return nil, err
	}
	if patch.Weather, err = models.NormalizeWeather(update.Weather, now); err != nil {
		return nil, err
	}
	if patch.Location == nil && len(update.Location) > 0 {
		s.logger.Debug("Ignoring empty location payload", zap.String("user_id", id))
	}
	return s.upsertAt(ctx, id, patch, now)
}

// RecordWeather stores an already normalized weather snapshot.
func (s *ContextService) RecordWeather(ctx context.Context, userID string, snapshot *models.WeatherSnapshot) (*models.UserContext, error) {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, id, store.ContextPatch{Weather: snapshot})
}

// AppendChatMessages adds the non-empty messages to the chat window, keeping
// the most recent models.ChatWindowSize entries.
func (s *ContextService) AppendChatMessages(ctx context.Context, userID string, inputs []models.ChatInput) (*models.UserContext, error) {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	entries := make([]models.ChatEntry, 0, len(inputs))
	for _, in := range inputs {
		msg := strings.TrimSpace(in.Message)
		if msg == "" {
			continue
		}
		entries = append(entries, models.ChatEntry{
			ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			Role:      models.NormalizeRole(in.Role),
			Message:   msg,
			Metadata:  maps.Clone(in.Metadata),
			Timestamp: now,
		})
	}

	if len(entries) == 0 {
		// Nothing to append: hand back the current document untouched.
		doc, err := s.store.FindOne(ctx, id)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, s.fail("load", id, err)
		}
		return s.upsertAt(ctx, id, store.ContextPatch{}, now)
	}

	doc, err := s.store.AtomicAppendCapped(ctx, id, entries, models.ChatWindowSize, now)
	if err != nil {
		return nil, s.fail("append chats", id, err)
	}
	return doc, nil
}

func (s *ContextService) Fetch(ctx context.Context, userID string) (*models.UserContext, error) {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.FindOne(ctx, id)
	if err != nil {
		return nil, s.fail("load", id, err)
	}
	return doc, nil
}

// Delete removes a context. Administrative use only.
func (s *ContextService) Delete(ctx context.Context, userID string) error {
	id, err := utils.NormalizeUserID(userID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.fail("delete", id, err)
	}
	s.logger.Info("User context deleted", zap.String("user_id", id))
	return nil
}

func (s *ContextService) upsert(ctx context.Context, id string, patch store.ContextPatch) (*models.UserContext, error) {
	return s.upsertAt(ctx, id, patch, s.now().UTC())
}

func (s *ContextService) upsertAt(ctx context.Context, id string, patch store.ContextPatch, now time.Time) (*models.UserContext, error) {
	doc, err := s.store.UpsertMerge(ctx, id, patch, now)
	if err != nil {
		return nil, s.fail("upsert", id, err)
	}
	return doc, nil
}

func (s *ContextService) fail(op, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("User context not found")
	}
	s.logger.Error("Context store operation failed",
		zap.String("op", op),
		zap.String("user_id", id),
		zap.String("kind", string(apperr.KindOf(err))),
		zap.Error(err))
	return err
}
