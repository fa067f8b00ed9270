package access

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// minTokenLength is the floor for newly issued unified tokens. Legacy
// tokens may be shorter; they are accepted as-is.
const minTokenLength = 20

// GenerateToken returns a URL-safe opaque token of the requested length.
func GenerateToken(length int) (string, error) {
	if length < minTokenLength {
		length = minTokenLength
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}

// IssueToken creates a new non-legacy unified token row.
func (s *Service) IssueToken(payload PublicAccessToken) (*PublicAccessToken, error) {
	length := minTokenLength
	if s.config != nil && s.config.Access.TokenLength > length {
		length = s.config.Access.TokenLength
	}

	token, err := GenerateToken(length)
	if err != nil {
		return nil, err
	}

	payload.Token = token
	payload.IsLegacy = false
	payload.LegacySource = nil
	payload.LegacyReference = nil
	payload.IsActive = true

	if err := s.db.Create(&payload).Error; err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	return &payload, nil
}

// HashSharePassword hashes a share password for storage on the share row.
func (s *Service) HashSharePassword(password string) (string, error) {
	cost := bcrypt.DefaultCost
	if s.config != nil && s.config.Access.SharePasswordCost >= bcrypt.MinCost && s.config.Access.SharePasswordCost <= bcrypt.MaxCost {
		cost = s.config.Access.SharePasswordCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash share password: %w", err)
	}

	return string(hash), nil
}

func comparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
