package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Envelope layout: base64( base64(iv) "::" base64(ciphertext) ), AES-256-CBC
// with PKCS#7 padding and key = SHA-256(secret).
const envelopeSeparator = "::"

var (
	ErrEmptySecret     = errors.New("secret is empty")
	ErrMalformedCipher = errors.New("malformed ciphertext envelope")
	ErrInvalidPadding  = errors.New("invalid padding")
)

// DeriveKey turns an arbitrary-length secret into an AES-256 key.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Encrypt seals plaintext into the envelope format the authority emits.
func Encrypt(plaintext []byte, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	inner := base64.StdEncoding.EncodeToString(iv) + envelopeSeparator +
		base64.StdEncoding.EncodeToString(ciphertext)
	return base64.StdEncoding.EncodeToString([]byte(inner)), nil
}

// Decrypt opens an envelope produced by Encrypt. Any structural or padding
// problem is reported as an error; no partial plaintext is returned.
func Decrypt(envelope string, secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	outer, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envelope))
	if err != nil {
		return nil, fmt.Errorf("%w: outer encoding: %v", ErrMalformedCipher, err)
	}

	ivPart, dataPart, found := strings.Cut(string(outer), envelopeSeparator)
	if !found {
		return nil, fmt.Errorf("%w: missing separator", ErrMalformedCipher)
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: bad iv", ErrMalformedCipher)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(dataPart)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad ciphertext length", ErrMalformedCipher)
	}

	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrInvalidPadding
	}
	pad := data[len(data)-n:]
	if !SecureCompare(pad, bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-n], nil
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
