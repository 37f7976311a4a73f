package bond

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// hkdfInfo binds derived keys to this store format.
var hkdfInfo = []byte("blekbd bond store v1")

// deriveKey uses HKDF-SHA256 to stretch the configured secret into an
// AES-256 key.
func deriveKey(secret []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, hkdfInfo)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("bond: HKDF: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bond: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("bond: new GCM: %w", err)
	}
	return aead, nil
}

// seal encrypts plaintext with a fresh random nonce. ad ties the record to
// its slot so a record copied into another slot fails to open.
func seal(aead cipher.AEAD, plaintext, ad []byte) (nonce, sealed []byte, err error) {
	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("bond: random nonce: %w", err)
	}
	return nonce, aead.Seal(nil, nonce, plaintext, ad), nil
}

func open(aead cipher.AEAD, nonce, sealed, ad []byte) ([]byte, error) {
	plaintext, err := aead.Open(nil, nonce, sealed, ad)
	if err != nil {
		return nil, fmt.Errorf("bond: decrypt: %w", err)
	}
	return plaintext, nil
}
