package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRole is the speaker of a chat entry. Valid values: "user", "assistant".
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatWindowSize is the number of most recent chat entries kept per user.
const ChatWindowSize = 5

// UserContext is the per-user aggregate handed to the advice step.
// One document per user in the user_contexts collection.
type UserContext struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Profile   Profile            `bson:"profile" json:"profile"`
	Location  *Location          `bson:"location" json:"location"`
	Weather   *WeatherSnapshot   `bson:"weather" json:"weather"`
	Chats     []ChatEntry        `bson:"chats" json:"chats"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Profile fields are nullable. A nil field in an update means "not supplied".
type Profile struct {
	Name              *string `bson:"name" json:"name"`
	Email             *string `bson:"email" json:"email"`
	Phone             *string `bson:"phone" json:"phone"`
	PreferredLanguage *string `bson:"preferred_language" json:"preferred_language"`
}

// Location is the last known location of a user.
type Location struct {
	Address        *string   `bson:"address" json:"address"`
	Latitude       *float64  `bson:"latitude" json:"latitude"`
	Longitude      *float64  `bson:"longitude" json:"longitude"`
	PrecisionLabel *string   `bson:"precision_label" json:"precision_label"`
	RawText        *string   `bson:"raw_text" json:"raw_text"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// WeatherSnapshot is the last known weather for a user.
type WeatherSnapshot struct {
	Temperature              *float64  `bson:"temperature" json:"temperature"`
	Humidity                 *float64  `bson:"humidity" json:"humidity"`
	Condition                *string   `bson:"condition" json:"condition"`
	WindSpeed                *float64  `bson:"wind_speed" json:"wind_speed"`
	PrecipitationProbability *float64  `bson:"precipitation_probability" json:"precipitation_probability"`
	Source                   *string   `bson:"source" json:"source"`
	UpdatedAt                time.Time `bson:"updated_at" json:"updated_at"`
}

// ChatEntry is one message in the rolling chat window.
type ChatEntry struct {
	ID        string         `bson:"id" json:"id"`
	Role      ChatRole       `bson:"role" json:"role"`
	Message   string         `bson:"message" json:"message"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
}

// ChatInput is an unsanitized chat entry as received from a caller.
type ChatInput struct {
	Role     string         `json:"role"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
