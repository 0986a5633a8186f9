// Package crypto implements content-level AEAD encryption of secret
// material: per-series key derivation from a root key, envelope
// encoding/decoding, and root-key provisioning.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/sarvex/keywhiz/internal/apperr"
)

const (
	nonceSize   = 12
	contentKeySize = 32
	tagSize     = 16
	maxKeyIDLen = 16
)

// KeyRing holds every root key this process may decrypt with, keyed by
// key id, plus the id used for new encryptions. Root keys are held only
// in memory, never logged, never serialized to the store.
type KeyRing struct {
	current string
	keys    map[string][]byte
}

// NewKeyRing builds a ring with a single current root key.
func NewKeyRing(kid string, rootKey []byte) (*KeyRing, error) {
	if len(kid) == 0 || len(kid) > maxKeyIDLen {
		return nil, fmt.Errorf("key id must be 1-%d printable characters", maxKeyIDLen)
	}
	if len(rootKey) != contentKeySize {
		return nil, fmt.Errorf("root key must be %d bytes", contentKeySize)
	}
	return &KeyRing{
		current: kid,
		keys:    map[string][]byte{kid: append([]byte(nil), rootKey...)},
	}, nil
}

// Add installs an additional root key that can still be used to decrypt
// old envelopes but is not selected for new encryptions. Use SetCurrent
// to promote it once a rotation is ready to take effect.
func (kr *KeyRing) Add(kid string, rootKey []byte) error {
	if len(kid) == 0 || len(kid) > maxKeyIDLen {
		return fmt.Errorf("key id must be 1-%d printable characters", maxKeyIDLen)
	}
	if len(rootKey) != contentKeySize {
		return fmt.Errorf("root key must be %d bytes", contentKeySize)
	}
	kr.keys[kid] = append([]byte(nil), rootKey...)
	return nil
}

// SetCurrent promotes an already-installed key id to be used for new
// encryptions.
func (kr *KeyRing) SetCurrent(kid string) error {
	if _, ok := kr.keys[kid]; !ok {
		return fmt.Errorf("unknown key id %q", kid)
	}
	kr.current = kid
	return nil
}

func (kr *KeyRing) rootKey(kid string) ([]byte, bool) {
	k, ok := kr.keys[kid]
	return k, ok
}

// Cryptographer performs AEAD encrypt/decrypt of secret content using
// per-series keys derived from a KeyRing's root key.
type Cryptographer struct {
	ring *KeyRing
}

// New builds a Cryptographer backed by ring.
func New(ring *KeyRing) *Cryptographer {
	return &Cryptographer{ring: ring}
}

// deriveContentKey derives the 32-byte content key for a series name
// under the given root key: HKDF-SHA256(rootKey, salt=name, info="content").
func deriveContentKey(rootKey []byte, name string) ([]byte, error) {
	key := make([]byte, contentKeySize)
	r := hkdf.New(sha256.New, rootKey, []byte(name), []byte("content"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving content key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under the key derived from name using the
// ring's current root key, with name bound as AAD. The returned envelope
// is the exact string persisted in SecretContent.EncryptedContent.
func (c *Cryptographer) Encrypt(name string, plaintext []byte) (string, error) {
	rootKey, _ := c.ring.rootKey(c.ring.current)
	contentKey, err := deriveContentKey(rootKey, name)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(name))
	return base64.StdEncoding.EncodeToString(sealed) + "." + c.ring.current, nil
}

// Decrypt opens an envelope produced by Encrypt, verifying that name
// matches the AAD bound at encryption time. Any tag or AAD mismatch, or
// a malformed envelope, is reported as apperr.CryptoIntegrityError —
// this kind must never be swallowed.
func (c *Cryptographer) Decrypt(name, envelope string) ([]byte, error) {
	payload, kid, err := splitEnvelope(envelope)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoIntegrityError, "malformed envelope", err)
	}
	rootKey, ok := c.ring.rootKey(kid)
	if !ok {
		return nil, apperr.New(apperr.CryptoIntegrityError, fmt.Sprintf("unknown key id %q", kid))
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoIntegrityError, "malformed envelope payload", err)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, apperr.New(apperr.CryptoIntegrityError, "envelope payload too short")
	}
	contentKey, err := deriveContentKey(rootKey, name)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoIntegrityError, "deriving content key", err)
	}
	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoIntegrityError, "creating AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoIntegrityError, "creating GCM", err)
	}
	nonce, ct := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, []byte(name))
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoIntegrityError, "AEAD tag or AAD mismatch", err)
	}
	return plaintext, nil
}

// DecodedLength returns the plaintext length an envelope will decrypt to,
// computed from its base64 payload length minus the nonce and tag
// overhead, without decrypting. Used by the sanitizer.
func DecodedLength(envelope string) (int, error) {
	payload, _, err := splitEnvelope(envelope)
	if err != nil {
		return 0, err
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, err
	}
	n := len(raw) - nonceSize - tagSize
	if n < 0 {
		return 0, fmt.Errorf("envelope payload too short")
	}
	return n, nil
}

func splitEnvelope(envelope string) (payload, kid string, err error) {
	i := strings.LastIndexByte(envelope, '.')
	if i < 0 || i == len(envelope)-1 {
		return "", "", fmt.Errorf("envelope missing key id delimiter")
	}
	return envelope[:i], envelope[i+1:], nil
}
