package dispatch

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
)

// ErrInvalidSecret is returned when a worker request carries a missing or
// wrong secret.
var ErrInvalidSecret = errors.New("invalid dispatch secret")

// SecretSource holds the installation facts the dispatch secret is derived from.
type SecretSource struct {
	PluginGUID  GUID
	SiteSecret  string
	InstalledAt int64
}

// Secret authenticates background worker requests. The value is derived once
// at construction and stays fixed for the life of the process.
type Secret struct {
	value string
}

// NewSecret derives the installation secret from src.
func NewSecret(src SecretSource) *Secret {
	sum := sha256.Sum256([]byte(src.PluginGUID.String() + src.SiteSecret + strconv.FormatInt(src.InstalledAt, 10)))
	return &Secret{value: hex.EncodeToString(sum[:])}
}

// Generate returns the installation secret.
func (s *Secret) Generate() string {
	return s.value
}

// Validate reports whether candidate matches the installation secret.
func (s *Secret) Validate(candidate string) bool {
	if candidate == "" || s.value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.value)) == 1
}
