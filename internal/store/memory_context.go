package store

import (
	"context"
	"sync"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
)

// MemoryDocumentStore keeps user contexts in process memory. All operations
// are serialized by one mutex.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]*models.UserContext
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]*models.UserContext)}
}

func (s *MemoryDocumentStore) FindOne(_ context.Context, userID string) (*models.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneContext(doc), nil
}

func (s *MemoryDocumentStore) UpsertMerge(_ context.Context, userID string, patch ContextPatch, now time.Time) (*models.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getOrCreate(userID, now)
	if patch.ReplaceProfile {
		doc.Profile = models.Profile{}
	}
	if patch.Profile.Name != nil {
		doc.Profile.Name = cloneString(patch.Profile.Name)
	}
	if patch.Profile.Email != nil {
		doc.Profile.Email = cloneString(patch.Profile.Email)
	}
	if patch.Profile.Phone != nil {
		doc.Profile.Phone = cloneString(patch.Profile.Phone)
	}
	if patch.Profile.PreferredLanguage != nil {
		doc.Profile.PreferredLanguage = cloneString(patch.Profile.PreferredLanguage)
	}
	if patch.Location != nil {
		doc.Location = cloneLocation(patch.Location)
	}
	if patch.Weather != nil {
		doc.Weather = cloneWeather(patch.Weather)
	}
	doc.UpdatedAt = now
	return cloneContext(doc), nil
}

func (s *MemoryDocumentStore) AtomicAppendCapped(_ context.Context, userID string, items []models.ChatEntry, limit int, now time.Time) (*models.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getOrCreate(userID, now)
	for _, item := range items {
		doc.Chats = append(doc.Chats, cloneChat(item))
	}
	if limit > 0 && len(doc.Chats) > limit {
		doc.Chats = append([]models.ChatEntry(nil), doc.Chats[len(doc.Chats)-limit:]...)
	}
	doc.UpdatedAt = now
	return cloneContext(doc), nil
}

func (s *MemoryDocumentStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[userID]; !ok {
		return ErrNotFound
	}
	delete(s.docs, userID)
	return nil
}

func (s *MemoryDocumentStore) getOrCreate(userID string, now time.Time) *models.UserContext {
	doc, ok := s.docs[userID]
	if !ok {
		doc = &models.UserContext{
			UserID:    userID,
			Chats:     []models.ChatEntry{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.docs[userID] = doc
	}
	return doc
}

func cloneContext(doc *models.UserContext) *models.UserContext {
	out := *doc
	out.Profile = models.Profile{
		Name:              cloneString(doc.Profile.Name),
		Email:             cloneString(doc.Profile.Email),
		Phone:             cloneString(doc.Profile.Phone),
		PreferredLanguage: cloneString(doc.Profile.PreferredLanguage),
	}
	out.Location = cloneLocation(doc.Location)
	out.Weather = cloneWeather(doc.Weather)
	out.Chats = make([]models.ChatEntry, 0, len(doc.Chats))
	for _, c := range doc.Chats {
		out.Chats = append(out.Chats, cloneChat(c))
	}
	return &out
}

func cloneLocation(l *models.Location) *models.Location {
	if l == nil {
		return nil
	}
	return &models.Location{
		Address:        cloneString(l.Address),
		Latitude:       cloneFloat(l.Latitude),
		Longitude:      cloneFloat(l.Longitude),
		PrecisionLabel: cloneString(l.PrecisionLabel),
		RawText:        cloneString(l.RawText),
		UpdatedAt:      l.UpdatedAt,
	}
}

func cloneWeather(w *models.WeatherSnapshot) *models.WeatherSnapshot {
	if w == nil {
		return nil
	}
	return &models.WeatherSnapshot{
		Temperature:              cloneFloat(w.Temperature),
		Humidity:                 cloneFloat(w.Humidity),
		Condition:                cloneString(w.Condition),
		WindSpeed:                cloneFloat(w.WindSpeed),
		PrecipitationProbability: cloneFloat(w.PrecipitationProbability),
		Source:                   cloneString(w.Source),
		UpdatedAt:                w.UpdatedAt,
	}
}

func cloneChat(c models.ChatEntry) models.ChatEntry {
	if c.Metadata != nil {
		c.Metadata = cloneMap(c.Metadata)
	}
	return c
}

// cloneMap copies decoded JSON metadata, descending into nested maps and slices.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
