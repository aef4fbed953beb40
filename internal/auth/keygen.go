package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const keyRandomLength = 48

// GenerateKey returns a new raw API key like "llm_<48 random chars>". The raw
// key is shown to the caller exactly once; only its digest is persisted.
func GenerateKey(prefix string) (string, error) {
	buf := make([]byte, keyRandomLength)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate key: %w", err)
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return prefix + "_" + string(buf), nil
}
