package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/weather"
	"go.uber.org/zap"
)

const maxQuestionLength = 2000

// Advice is the answer to one farmer question.
type Advice struct {
	Answer   string              `json:"answer"`
	Advisory *weather.Advisory   `json:"advisory,omitempty"`
	Weather  *weather.Result     `json:"weather,omitempty"`
	Context  *models.UserContext `json:"context"`
}

// Advisor assembles the user context into a prompt and records the exchange
// in the chat window.
type Advisor struct {
	contexts *ContextService
	weather  *weather.Cache
	llm      LanguageModel
	logger   *zap.Logger
}

// NewAdvisor accepts a nil llm; Ask then fails as unavailable.
func NewAdvisor(contexts *ContextService, cache *weather.Cache, llm LanguageModel, logger *zap.Logger) *Advisor {
	return &Advisor{contexts: contexts, weather: cache, llm: llm, logger: logger}
}

func (a *Advisor) Ask(ctx context.Context, userID, question string) (*Advice, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validation("question", "Question is required")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return nil, apperr.Validation("question", fmt.Sprintf("Question must be at most %d characters", maxQuestionLength))
	}
	if a.llm == nil {
		return nil, apperr.Unavailable("Advice service is not configured", apperr.ErrNotConfigured)
	}

	doc, err := a.contexts.EnsureExists(ctx, userID, models.Profile{})
	if err != nil {
		return nil, err
	}

	advice := &Advice{}
	if doc.Location.HasCoordinates() && a.weather != nil {
		res, err := a.weather.Get(ctx, *doc.Location.Latitude, *doc.Location.Longitude)
		if err != nil {
			return nil, err
		}
		advisory := weather.Advise(res.Payload)
		advice.Weather = &res
		advice.Advisory = &advisory
		// Fallback values are placeholders, not observations.
		if !res.Fallback {
			if doc, err = a.contexts.RecordWeather(ctx, userID, res.Payload.Snapshot(res.FetchedAt)); err != nil {
				return nil, err
			}
		}
	}

	answer, err := a.llm.Generate(ctx, BuildPrompt(doc, advice.Advisory, question))
	if err != nil {
		a.logger.Error("Language model call failed", zap.String("user_id", doc.UserID), zap.Error(err))
		if errors.Is(err, apperr.ErrNotConfigured) {
			return nil, apperr.Unavailable("Advice service is not configured", err)
		}
		return nil, apperr.Transient("Advice service is temporarily unavailable", err)
	}

	advice.Answer = answer
	advice.Context, err = a.contexts.AppendChatMessages(ctx, userID, []models.ChatInput{
		{Role: string(models.RoleUser), Message: question},
		{Role: string(models.RoleAssistant), Message: answer},
	})
	if err != nil {
		return nil, err
	}
	return advice, nil
}

// BuildPrompt renders the context aggregate and the question as plain text.
func BuildPrompt(doc *models.UserContext, advisory *weather.Advisory, question string) string {
	var b strings.Builder

	b.WriteString("Farmer profile:\n")
	writeField(&b, "Name", doc.Profile.Name)
	writeField(&b, "Preferred language", doc.Profile.PreferredLanguage)

	if loc := doc.Location; loc != nil {
		b.WriteString("\nLocation:\n")
		writeField(&b, "Address", loc.Address)
		if loc.HasCoordinates() {
			fmt.Fprintf(&b, "- Coordinates: %.4f, %.4f\n", *loc.Latitude, *loc.Longitude)
		}
		writeField(&b, "Precision", loc.PrecisionLabel)
		writeField(&b, "Description", loc.RawText)
	}

	if w := doc.Weather; w != nil {
		b.WriteString("\nCurrent weather:\n")
		writeNumber(&b, "Temperature", w.Temperature, "°C")
		writeNumber(&b, "Humidity", w.Humidity, "%")
		writeField(&b, "Condition", w.Condition)
		writeNumber(&b, "Wind speed", w.WindSpeed, " km/h")
		writeNumber(&b, "Chance of rain", w.PrecipitationProbability, "%")
	}
	if advisory != nil {
		fmt.Fprintf(&b, "- Advisory: %s\n", advisory.Message)
	}

	if len(doc.Chats) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, c := range doc.Chats {
			fmt.Fprintf(&b, "%s: %s\n", c.Role, c.Message)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", question)
	return b.String()
}

func writeField(b *strings.Builder, label string, v *string) {
	if v != nil {
		fmt.Fprintf(b, "- %s: %s\n", label, *v)
	}
}

func writeNumber(b *strings.Builder, label string, v *float64, unit string) {
	if v != nil {
		fmt.Fprintf(b, "- %s: %.1f%s\n", label, *v, unit)
	}
}
