package models

import "time"

// OtpRecord is the single outstanding code for an email address.
// Only a digest of the code is stored.
type OtpRecord struct {
	CodeDigest   string    `json:"code_digest"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AttemptsUsed int       `json:"attempts_used"`
}
