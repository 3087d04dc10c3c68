// Package cryptox implements the credential vault: authenticated encryption
// of platform tokens and app secrets at rest.
//
// A sealed value is the string
//
//	enc:v1:<base64url(nonce || ciphertext || tag)>
//
// produced by AES-256-GCM with a fresh random 12-byte nonce per call. The
// version prefix doubles as associated data, so it cannot be swapped without
// failing authentication. Values without the "enc:" marker are legacy
// plaintext written before encryption was enabled and are passed through.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	sealedMarker  = "enc:"
	versionV1     = "v1"
	sealedPrefix  = sealedMarker + versionV1 + ":"
	keyDerivation = "crosspost credential vault v1"
	keySize       = 32
)

var encoding = base64.RawURLEncoding.Strict()

// Vault seals and reveals secrets. The zero value is not usable; create one
// with NewVault.
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives an AES-256 key from secret with HKDF-SHA256. An empty
// secret yields a pass-through vault (see Enabled); callers are expected to
// log that loudly or refuse to start.
func NewVault(secret string) (*Vault, error) {
	if secret == "" {
		return &Vault{}, nil
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyDerivation)), key); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Vault{aead: aead}, nil
}

// Enabled reports whether the vault holds a key. A disabled vault stores
// plaintext.
func (v *Vault) Enabled() bool {
	return v.aead != nil
}

// Seal encrypts plaintext. Empty strings stay empty so optional columns
// remain distinguishable from set ones.
func (v *Vault) Seal(plaintext string) (string, error) {
	if !v.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := v.aead.Seal(nonce, nonce, []byte(plaintext), []byte(sealedPrefix))
	return sealedPrefix + encoding.EncodeToString(out), nil
}

// Reveal decrypts a value produced by Seal. Legacy plaintext is returned
// unchanged. Any authentication failure yields common.ErrIntegrity and never
// partial plaintext.
func (v *Vault) Reveal(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if !strings.HasPrefix(stored, sealedPrefix) {
		return "", fmt.Errorf("%w: unknown vault version", common.ErrIntegrity)
	}
	if !v.Enabled() {
		return "", common.ErrVaultLocked
	}

	raw, err := encoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: malformed payload", common.ErrIntegrity)
	}

	ns := v.aead.NonceSize()
	if len(raw) < ns+v.aead.Overhead() {
		return "", fmt.Errorf("%w: payload too short", common.ErrIntegrity)
	}

	plaintext, err := v.aead.Open(nil, raw[:ns], raw[ns:], []byte(sealedPrefix))
	if err != nil {
		return "", common.ErrIntegrity
	}

	return string(plaintext), nil
}

// RevealOptional is Reveal for nullable columns.
func (v *Vault) RevealOptional(stored *string) (string, error) {
	if stored == nil {
		return "", nil
	}
	return v.Reveal(*stored)
}

// IsSealed reports whether s carries the vault marker.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedMarker)
}
