// Package crypto seals sensitive fields at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// sealedPrefix marks values written by Encrypt, so rows stored before a key
// was configured still read back as plaintext.
var sealedPrefix = []byte("hf1:")

var (
	ErrKeyLength   = errors.New("data encryption key must decode to 32 bytes")
	ErrCiphertext  = errors.New("ciphertext too short")
	ErrKeyRequired = errors.New("sealed value found but no data encryption key is configured")
)

type Service struct {
	aead cipher.AEAD
}

// New accepts a hex, base64 or raw 32 byte key. An empty key yields a
// passthrough service.
func New(key string) (*Service, error) {
	if key == "" {
		return &Service{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != 32 {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{aead: aead}, nil
}

func (s *Service) Configured() bool {
	return s != nil && s.aead != nil
}

func (s *Service) Encrypt(plain []byte) ([]byte, error) {
	if len(plain) == 0 || !s.Configured() {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	out := make([]byte, 0, len(sealedPrefix)+len(nonce)+len(plain)+s.aead.Overhead())
	out = append(out, sealedPrefix...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plain, nil), nil
}

func (s *Service) Decrypt(data []byte) ([]byte, error) {
	if len(data) < len(sealedPrefix) || string(data[:len(sealedPrefix)]) != string(sealedPrefix) {
		return data, nil
	}
	if !s.Configured() {
		return nil, ErrKeyRequired
	}
	body := data[len(sealedPrefix):]
	if len(body) < s.aead.NonceSize() {
		return nil, ErrCiphertext
	}
	nonce, sealed := body[:s.aead.NonceSize()], body[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return plain, nil
}

func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
