// Package secrets seals session state at rest with AES-256-GCM.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

//nolint:gochecknoglobals // sentinel error
var ErrInvalidKey = errors.New("secrets: invalid encryption key")

//nolint:gochecknoglobals // sentinel error
var ErrCiphertextTooShort = errors.New("secrets: ciphertext too short")

const keySize = 32

// Vault encrypts/decrypts values using AES-256-GCM.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a Vault with the given 32-byte encryption key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVault: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVault: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// NewVaultFromPassphrase derives the key from an operator passphrase with
// HKDF-SHA256. The same passphrase and salt always yield the same key.
func NewVaultFromPassphrase(passphrase, salt string) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrInvalidKey
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte("parley session vault"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secrets.NewVaultFromPassphrase: %w", err)
	}

	return NewVault(key)
}

// Seal encrypts plaintext bound to aad. The output format is
// nonce || ciphertext.
func (v *Vault) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plaintext)+v.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets.Seal: generate nonce: %w", err)
	}

	return v.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal. It fails if the data or aad were altered.
func (v *Vault) Open(sealed, aad []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("secrets.Open: %w", ErrCiphertextTooShort)
	}

	plaintext, err := v.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("secrets.Open: %w", err)
	}

	return plaintext, nil
}
