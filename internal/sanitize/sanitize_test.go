package sanitize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarvex/keywhiz/internal/crypto"
	"github.com/sarvex/keywhiz/internal/sanitize"
	"github.com/sarvex/keywhiz/pkg/models"
)

func TestSanitizeComputesDecodedLengthWithoutDecrypting(t *testing.T) {
	rootKey, err := crypto.GenerateRootKey()
	require.NoError(t, err)
	ring, err := crypto.NewKeyRing("k1", rootKey)
	require.NoError(t, err)
	c := crypto.New(ring)

	plaintext := []byte("hunter2")
	envelope, err := c.Encrypt("DB_Pass", plaintext)
	require.NoError(t, err)

	secret := models.Secret{
		Series:  models.SecretSeries{ID: 1, Name: "DB_Pass"},
		Content: models.SecretContent{EncryptedContent: envelope, Version: ""},
	}

	sanitized, err := sanitize.Sanitize(secret)
	require.NoError(t, err)
	require.Equal(t, len(plaintext), sanitized.DecodedLength)
	require.NotContains(t, sanitized.Checksum, envelope)
}
