package sealing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const Algorithm = "AES-256-GCM"

var ErrSealedPayloadTampered = errors.New("sealed payload failed authentication")

// SealedPayload is the at-rest form of an upload: ciphertext plus the
// parameters needed to authenticate and decrypt it. The auth tag is kept
// separate from the ciphertext so it can travel as object metadata.
type SealedPayload struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	Algorithm  string
}

// Codec seals and unseals byte payloads with AES-GCM. It is stateless except
// for key material and safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from an AES key (16, 24 or 32 bytes).
func NewCodec(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext under a freshly generated random IV. An IV is never
// reused for a given key.
func (c *Codec) Seal(plaintext []byte) (*SealedPayload, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)

	// GCM appends the tag to the ciphertext; split it off so the tag can be
	// stored alongside the object instead of inside it.
	tagOffset := len(sealed) - c.aead.Overhead()

	return &SealedPayload{
		Ciphertext: sealed[:tagOffset],
		IV:         iv,
		AuthTag:    sealed[tagOffset:],
		Algorithm:  Algorithm,
	}, nil
}

// Unseal authenticates and decrypts a sealed payload. Any modification of the
// ciphertext, IV or tag fails closed: no partial plaintext is ever returned.
func (c *Codec) Unseal(payload *SealedPayload) ([]byte, error) {
	if payload.Algorithm != Algorithm {
		return nil, fmt.Errorf("unsupported algorithm %q", payload.Algorithm)
	}
	if len(payload.IV) != c.aead.NonceSize() {
		return nil, fmt.Errorf("invalid iv length %d", len(payload.IV))
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+len(payload.AuthTag))
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.AuthTag...)

	plaintext, err := c.aead.Open(nil, payload.IV, sealed, nil)
	if err != nil {
		return nil, ErrSealedPayloadTampered
	}

	return plaintext, nil
}
