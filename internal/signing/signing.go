package signing

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HMACSigner signs declarations with a server-held key. It replaces a wallet
// signature where no wallet is available.
type HMACSigner struct {
	key []byte
}

func NewHMACSigner(key string) (*HMACSigner, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("signing key is required")
	}
	return &HMACSigner{key: []byte(key)}, nil
}

// NewEphemeralSigner uses a random key that lives as long as the process.
func NewEphemeralSigner() (*HMACSigner, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &HMACSigner{key: key}, nil
}

func (s *HMACSigner) Sign(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(s.mac(message)), nil
}

func (s *HMACSigner) Verify(message, signature string) bool {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return false
	}
	return hmac.Equal(raw, s.mac(message))
}

func (s *HMACSigner) mac(message string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(message))
	return h.Sum(nil)
}
