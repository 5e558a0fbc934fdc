// Package vault seals credential snapshots so they can be written to durable
// storage and restored after a restart.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/config"
)

var (
	ErrNoKey         = errors.New("vault: no key configured")
	ErrInvalidKey    = errors.New("vault: key must decode to 32 bytes")
	ErrCorruptedBlob = errors.New("vault: blob failed authentication")
)

// Sealer encrypts credential snapshots with XChaCha20-Poly1305. A sealed blob
// is the random nonce followed by the ciphertext and its tag.
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// NewSealerFromConfig resolves key material from the inline key or the key file.
func NewSealerFromConfig(cfg config.VaultConfig) (*Sealer, error) {
	material := strings.TrimSpace(cfg.Key)
	if material == "" && cfg.KeyFile != "" {
		path, err := homedir.Expand(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("vault: could not expand key file path: %w", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("vault: could not read key file: %w", err)
		}
		material = strings.TrimSpace(string(data))
	}
	if material == "" {
		return nil, ErrNoKey
	}
	key, err := ParseKey(material)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// ParseKey accepts a hex or base64 (standard or URL alphabet) encoded 32-byte key.
func ParseKey(s string) ([]byte, error) {
	if len(s) == hex.EncodedLen(chacha20poly1305.KeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(s); err == nil && len(key) == chacha20poly1305.KeySize {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a new random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext. accountID is bound as associated data so a blob
// cannot be replayed under another account.
func (s *Sealer) Seal(accountID string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce generation failed: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(accountID)), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(accountID string, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCorruptedBlob
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(accountID))
	if err != nil {
		return nil, ErrCorruptedBlob
	}
	return plaintext, nil
}

// SealCredentials encodes creds as a JSON array and seals it.
func (s *Sealer) SealCredentials(accountID string, creds []schemas.Credential) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("vault: could not encode credentials: %w", err)
	}
	return s.Seal(accountID, plaintext)
}

// OpenCredentials reverses SealCredentials.
func (s *Sealer) OpenCredentials(accountID string, blob []byte) ([]schemas.Credential, error) {
	plaintext, err := s.Open(accountID, blob)
	if err != nil {
		return nil, err
	}
	var creds []schemas.Credential
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("vault: could not decode credentials: %w", err)
	}
	return creds, nil
}
