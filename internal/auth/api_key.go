package auth

import (
	"context"
	"errors"

	"ollama_gateway/internal/models"
)

// ErrKeyNotFound is returned when no active credential matches the presented key.
var ErrKeyNotFound = errors.New("api key not found")

// CredentialStore resolves plaintext API keys into stored credentials.
//
// Lookup hashes the presented key and matches it against stored digests. It
// returns ErrKeyNotFound when no active credential matches; any other error
// means the store itself was unreachable and the request must fail closed.
// On a successful match the store schedules a best-effort update of the
// credential's last-used timestamp without blocking the caller.
type CredentialStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*models.Credential, error)
}
