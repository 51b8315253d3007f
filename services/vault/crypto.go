package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// ErrMalformedCiphertext means the stored bundle does not look like
// nonceHex:authTagHex:cipherHex and decryption was never attempted.
var ErrMalformedCiphertext = errors.New("malformed ciphertext bundle")

// Encrypt seals the plaintext with AES-256-GCM under a fresh random
// nonce. The bundle format is nonceHex:authTagHex:cipherHex so any
// consumer can validate integrity of the encoding before touching the
// cipher.
func (s Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	_, err := rand.Read(nonce)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return fmt.Sprintf(
		"%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens a bundle produced by Encrypt. Any tampering with the
// nonce, tag or ciphertext fails authentication rather than yielding
// wrong plaintext.
func (s Service) Decrypt(bundle string) (string, error) {
	parts := strings.Split(bundle, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrMalformedCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedCiphertext
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("vault: open bundle: %w", err)
	}
	return string(plaintext), nil
}

// IssueToken returns a fresh opaque 256-bit credential reference,
// hex-encoded (64 chars). The token is what gets persisted on a portal
// connection, never the secret itself.
func IssueToken() (string, error) {
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
