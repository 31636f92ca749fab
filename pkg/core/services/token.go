package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
)

const (
	// MinTokenBytes yields 8 hex characters.
	MinTokenBytes = 4
	MaxTokenBytes = 32

	maxTokenLength = 128
)

// NewTokenGenerator returns a source of lowercase hex tokens of byteLen random bytes.
func NewTokenGenerator(byteLen int) func() (string, error) {
	if byteLen < MinTokenBytes {
		byteLen = MinTokenBytes
	}
	if byteLen > MaxTokenBytes {
		byteLen = MaxTokenBytes
	}
	return func() (string, error) {
		b := make([]byte, byteLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	}
}

// ValidateToken rejects tokens that cannot name any record.
// Well-formed but unknown tokens are left for the store to report as not found.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	if len(token) > maxTokenLength {
		return fmt.Errorf("%w: token is too long", domain.ErrValidation)
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("%w: token contains invalid characters", domain.ErrValidation)
		}
	}
	return nil
}
