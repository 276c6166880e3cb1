package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Tagged ciphertexts look like "enc::v1::<base64(nonce|ciphertext|tag)>".
// The version segment is there so a future algorithm change is detectable
// instead of silently mis-decrypting old rows.
const (
	cipherPrefix  = "enc::"
	cipherVersion = "v1"
)

var (
	ErrBadEncryptionKey = errors.New("encryption key must be exactly 32 bytes")
	ErrCorruptPayload   = errors.New("encrypted payload is corrupt or has been tampered with")
)

// Cipher encrypts credentials before they hit the database. The AES key is
// derived from the master key with HKDF so the raw configured secret is
// never used directly as key material.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrBadEncryptionKey
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("credential-cipher-"+cipherVersion))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns the tagged
// string form.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + cipherVersion + "::" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Input without the cipher prefix is returned
// unchanged — rows written before encryption was introduced stay readable.
// A prefixed payload that fails to parse or authenticate is an error, never
// a passthrough.
func (c *Cipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, cipherPrefix) {
		return stored, nil
	}

	rest := strings.TrimPrefix(stored, cipherPrefix)
	version, encoded, found := strings.Cut(rest, "::")
	if !found {
		return "", ErrCorruptPayload
	}
	if version != cipherVersion {
		return "", fmt.Errorf("unsupported cipher version %q", version)
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCorruptPayload
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", ErrCorruptPayload
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCorruptPayload
	}

	return string(plaintext), nil
}
