// Package sanitize produces redacted projections of secrets for listing
// surfaces: everything a Secret carries except its ciphertext or
// plaintext.
package sanitize

import (
	"github.com/sarvex/keywhiz/internal/crypto"
	"github.com/sarvex/keywhiz/pkg/models"
)

// Sanitize computes a SanitizedSecret from a Secret, deriving the decoded
// content length from the envelope without decrypting it.
func Sanitize(secret models.Secret) (models.SanitizedSecret, error) {
	n, err := crypto.DecodedLength(secret.Content.EncryptedContent)
	if err != nil {
		return models.SanitizedSecret{}, err
	}
	return models.SanitizedSecret{
		ID:            secret.Series.ID,
		Name:          secret.Series.Name,
		Description:   secret.Series.Description,
		Version:       secret.Content.Version,
		Checksum:      checksum(secret.Content.EncryptedContent),
		CreatedAt:     secret.Content.CreatedAt,
		CreatedBy:     secret.Content.CreatedBy,
		UpdatedAt:     secret.Content.UpdatedAt,
		UpdatedBy:     secret.Content.UpdatedBy,
		Metadata:      secret.Series.Metadata,
		Type:          secret.Series.Type,
		Options:       secret.Series.GenerationOptions,
		DecodedLength: n,
	}, nil
}

// checksum returns a short, non-cryptographic fingerprint of the
// envelope for cache-invalidation/display purposes. It is derived from
// the ciphertext, never the plaintext.
func checksum(envelope string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(envelope); i++ {
		h ^= uint32(envelope[i])
		h *= 16777619
	}
	const hextable = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hextable[h&0xf]
		h >>= 4
	}
	return string(buf)
}
