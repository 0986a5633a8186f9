// Package models holds the plain data types shared across the storage,
// controller, and API layers.
package models

import "time"

// SecretSeries is the identity of a named secret across all its revisions.
type SecretSeries struct {
	ID                int64
	Name              string
	Description       string
	CreatedAt         time.Time
	CreatedBy         string
	UpdatedAt         time.Time
	UpdatedBy         string
	Type              string
	GenerationOptions map[string]string
	Metadata          map[string]string
}

// SecretContent is one immutable ciphertext revision of a series.
type SecretContent struct {
	ID               int64
	SecretSeriesID   int64
	EncryptedContent string
	Version          string
	CreatedAt        time.Time
	CreatedBy        string
	UpdatedAt        time.Time
	UpdatedBy        string
}

// Secret is a derived read-model join of a series with one of its content
// revisions. Plaintext is populated lazily by the controller on first
// access and is never persisted.
type Secret struct {
	Series  SecretSeries
	Content SecretContent

	plaintext []byte
	decrypted bool
}

// SetPlaintext records the plaintext obtained by decrypting Content once.
// Subsequent calls are no-ops so a Secret decrypts at most once per access.
func (s *Secret) SetPlaintext(p []byte) {
	if s.decrypted {
		return
	}
	s.plaintext = p
	s.decrypted = true
}

// Plaintext returns the decrypted content, if SetPlaintext has been called.
func (s *Secret) Plaintext() ([]byte, bool) {
	return s.plaintext, s.decrypted
}

// DisplayName renders the CLI-facing "name..version" composite. The
// delimiter is two dots so callers can round-trip via ParseDisplayName.
func DisplayName(name, version string) string {
	return name + ".." + version
}

// ParseDisplayName splits a composite name on the last occurrence of "..".
func ParseDisplayName(displayName string) (name, version string, ok bool) {
	for i := len(displayName) - 2; i >= 0; i-- {
		if displayName[i] == '.' && displayName[i+1] == '.' {
			return displayName[:i], displayName[i+2:], true
		}
	}
	return "", "", false
}

// SanitizedSecret is a listing-safe projection of a Secret: no ciphertext,
// no plaintext, just enough to render a UI row.
type SanitizedSecret struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Version       string            `json:"version"`
	Checksum      string            `json:"checksum"`
	CreatedAt     time.Time         `json:"createdAt"`
	CreatedBy     string            `json:"createdBy"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	UpdatedBy     string            `json:"updatedBy"`
	Metadata      map[string]string `json:"metadata"`
	Type          string            `json:"type"`
	Options       map[string]string `json:"generationOptions"`
	DecodedLength int               `json:"secretLength"`
}

// ResolvedSecret is the fully-populated JSON surface for a decrypted
// secret: SanitizedSecret's fields plus base64 plaintext.
type ResolvedSecret struct {
	SanitizedSecret
	SecretBase64 string `json:"secret"`
}
