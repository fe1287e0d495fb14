package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

const (
	otpDigits  = 6
	otpModulus = 1000000
)

// GenerateOTP returns a uniformly random 6-digit code. Leading zeros are kept.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpModulus))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// DigestOTP hashes a code with keyed BLAKE2b-256.
// The key is bound to the email so digests cannot be replayed across addresses.
func DigestOTP(secret []byte, email, code string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("otp secret is empty")
	}
	key := secret
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(email))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return base64.RawStdEncoding.EncodeToString(h.Sum(nil)), nil
}

// VerifyOTP compares a submitted code against a stored digest in constant time.
func VerifyOTP(secret []byte, email, code, digest string) (bool, error) {
	computed, err := DigestOTP(secret, email, code)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1, nil
}
