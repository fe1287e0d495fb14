package utils

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	MaxUserIDLength   = 128
	MaxEmailLength    = 254
	MaxNameLength     = 120
	MaxLanguageLength = 32
	minPhoneDigits    = 7
	maxPhoneDigits    = 15
)

var (
	emailRegex    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	phoneRegex    = regexp.MustCompile(`^\+?[0-9 ()\-]+$`)
	languageRegex = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})*$`)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NormalizeUserID trims the identifier and checks it is usable as a document key.
// Keys starting with '$' or containing control characters or NUL are rejected.
func NormalizeUserID(userID string) (string, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return "", &ValidationError{Field: "user_id", Message: "User ID is required"}
	}
	if len(id) > MaxUserIDLength {
		return "", &ValidationError{Field: "user_id", Message: "User ID is too long"}
	}
	if strings.HasPrefix(id, "$") {
		return "", &ValidationError{Field: "user_id", Message: "User ID must not start with '$'"}
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return "", &ValidationError{Field: "user_id", Message: "User ID contains invalid characters"}
		}
	}
	return id, nil
}

// ValidateEmail checks email shape only. The address is not lowercased.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if len(email) > MaxEmailLength || !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Email address is invalid"}
	}
	if strings.Contains(email, "..") {
		return &ValidationError{Field: "email", Message: "Email address is invalid"}
	}
	return nil
}

// ValidatePhone accepts E.164-ish numbers with common separators.
func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return &ValidationError{Field: "phone", Message: "Phone number is invalid"}
	}
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return &ValidationError{Field: "phone", Message: "Phone number must have 7 to 15 digits"}
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "Name must be at most 120 characters"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &ValidationError{Field: "name", Message: "Name contains invalid characters"}
		}
	}
	return nil
}

// NormalizeLanguage lowercases a language tag such as "hi" or "en-IN".
func NormalizeLanguage(lang string) (string, error) {
	l := strings.ToLower(strings.TrimSpace(lang))
	if len(l) > MaxLanguageLength || !languageRegex.MatchString(l) {
		return "", &ValidationError{Field: "preferred_language", Message: "Preferred language must be a language code like \"en\" or \"hi-IN\""}
	}
	return l, nil
}
