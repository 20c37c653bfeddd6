// Package vault encrypts the third-party passwords kept for automatic session
// refresh. Plaintext never leaves Decrypt's return value: it is not logged and
// it is not embedded in errors.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	svcerrors "character-sync/pkg/errors"

	"golang.org/x/crypto/hkdf"
)

const (
	// IVSize is the CBC initialization vector size.
	IVSize = aes.BlockSize

	// MinKeySize is the minimum size of the configured key material.
	MinKeySize = 32

	hkdfInfo = "character-sync/credential-vault/v1"
)

// ErrInvalidKeyLength is returned when the configured key is too short.
var ErrInvalidKeyLength = errors.New("invalid key length")

// EncryptedSecret is an AES-256-CBC ciphertext with its IV.
type EncryptedSecret struct {
	IV         [IVSize]byte
	Ciphertext []byte
}

// String serializes the secret as hex(iv):hex(ciphertext).
func (s EncryptedSecret) String() string {
	return hex.EncodeToString(s.IV[:]) + ":" + hex.EncodeToString(s.Ciphertext)
}

// ParseSecret parses the hex(iv):hex(ciphertext) form. Any other shape is a
// corrupt secret.
func ParseSecret(stored string) (EncryptedSecret, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return EncryptedSecret{}, svcerrors.WithReason(svcerrors.ErrCorruptSecret, "expected iv:ciphertext")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != IVSize {
		return EncryptedSecret{}, svcerrors.WithReason(svcerrors.ErrCorruptSecret, "malformed iv")
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return EncryptedSecret{}, svcerrors.WithReason(svcerrors.ErrCorruptSecret, "malformed ciphertext")
	}

	var secret EncryptedSecret
	copy(secret.IV[:], iv)
	secret.Ciphertext = ct
	return secret, nil
}

// Vault holds the process-wide symmetric key.
type Vault struct {
	block cipher.Block
	rand  io.Reader
}

// KeyDerivation selects how the configured key material becomes the AES key.
type KeyDerivation string

const (
	// KeyRaw uses the first 32 bytes of the key material, which keeps secrets
	// written by other aes-256-cbc clients of the same key readable.
	KeyRaw KeyDerivation = "raw"
	// KeyHKDF expands the key material with HKDF-SHA256.
	KeyHKDF KeyDerivation = "hkdf"
)

// New uses the first 32 bytes of keyMaterial as the AES-256 key.
func New(keyMaterial []byte) (*Vault, error) {
	return NewWithDerivation(keyMaterial, KeyRaw)
}

// NewWithDerivation builds a vault whose AES-256 key comes from keyMaterial
// through derivation.
func NewWithDerivation(keyMaterial []byte, derivation KeyDerivation) (*Vault, error) {
	if len(keyMaterial) < MinKeySize {
		return nil, ErrInvalidKeyLength
	}
	key := make([]byte, 32)
	switch derivation {
	case KeyRaw, "":
		copy(key, keyMaterial[:32])
	case KeyHKDF:
		if _, err := io.ReadFull(hkdf.New(sha256.New, keyMaterial, nil, []byte(hkdfInfo)), key); err != nil {
			return nil, fmt.Errorf("derive vault key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown key derivation %q", derivation)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Vault{block: block, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (v *Vault) Encrypt(plaintext string) (EncryptedSecret, error) {
	var secret EncryptedSecret
	if _, err := io.ReadFull(v.rand, secret.IV[:]); err != nil {
		return EncryptedSecret{}, fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	secret.Ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(v.block, secret.IV[:]).CryptBlocks(secret.Ciphertext, padded)
	return secret, nil
}

// EncryptString is Encrypt followed by serialization.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	secret, err := v.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return secret.String(), nil
}

// Decrypt opens a secret sealed by Encrypt.
func (v *Vault) Decrypt(secret EncryptedSecret) (string, error) {
	if len(secret.Ciphertext) == 0 || len(secret.Ciphertext)%aes.BlockSize != 0 {
		return "", svcerrors.WithReason(svcerrors.ErrDecryption, "ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(secret.Ciphertext))
	cipher.NewCBCDecrypter(v.block, secret.IV[:]).CryptBlocks(out, secret.Ciphertext)

	plain, ok := pkcs7Unpad(out, aes.BlockSize)
	if !ok {
		return "", svcerrors.WithReason(svcerrors.ErrDecryption, "bad padding")
	}
	return string(plain), nil
}

// DecryptString parses and decrypts the serialized form.
func (v *Vault) DecryptString(stored string) (string, error) {
	secret, err := ParseSecret(stored)
	if err != nil {
		return "", err
	}
	return v.Decrypt(secret)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
