// Package secrets provides at-rest encryption for stored credentials.
//
// Values are encrypted with AES-256-GCM and serialized in a tagged text form,
// `enc:<nonce-hex>:<ciphertext-hex>`, so encrypted and plaintext values can
// coexist in the same settings store. All operations fail closed: when no key
// is configured, or a value does not carry the tag, or the payload is
// malformed, the input is returned unchanged rather than erroring.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix tags encrypted values.
const Prefix = "enc:"

const nonceSize = 12

// Cipher encrypts and decrypts tagged secret strings. The zero value is a
// disabled cipher that passes every value through unchanged.
type Cipher struct {
	key []byte
}

// New derives a Cipher from a passphrase. The AES-256 key is the SHA-256
// digest of the passphrase. An empty passphrase yields a disabled cipher.
func New(passphrase string) *Cipher {
	if passphrase == "" {
		return &Cipher{}
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &Cipher{key: sum[:]}
}

// Enabled reports whether a key is configured.
func (c *Cipher) Enabled() bool {
	return len(c.key) == sha256.Size
}

// IsEncrypted reports whether the value carries the encrypted tag.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Encrypt returns the tagged ciphertext for value. The value is returned
// unchanged when the cipher is disabled, the value is empty, or the value is
// already tagged.
func (c *Cipher) Encrypt(value string) string {
	if !c.Enabled() || value == "" || IsEncrypted(value) {
		return value
	}
	gcm, err := c.aead()
	if err != nil {
		return value
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return value
	}
	sealed := gcm.Seal(nil, nonce, []byte(value), nil)
	return fmt.Sprintf("%s%s:%s", Prefix, hex.EncodeToString(nonce), hex.EncodeToString(sealed))
}

// Decrypt returns the plaintext for a tagged value. Untagged, malformed, or
// unauthenticatable values come back unchanged.
func (c *Cipher) Decrypt(value string) string {
	if !c.Enabled() || !IsEncrypted(value) {
		return value
	}
	parts := strings.Split(strings.TrimPrefix(value, Prefix), ":")
	if len(parts) != 2 {
		return value
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return value
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return value
	}
	gcm, err := c.aead()
	if err != nil {
		return value
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return value
	}
	return string(plain)
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
