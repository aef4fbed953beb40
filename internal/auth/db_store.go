package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/utils"
)

// DatabaseStore resolves API keys against the api_keys table.
type DatabaseStore struct {
	repo   *storage.CredentialRepository
	logger *utils.Logger
}

// NewDatabaseStore creates a store backed by the credential repository.
func NewDatabaseStore(repo *storage.CredentialRepository) *DatabaseStore {
	return &DatabaseStore{
		repo:   repo,
		logger: utils.NewLogger("auth"),
	}
}

// Lookup hashes the presented key and fetches the matching active credential.
func (s *DatabaseStore) Lookup(ctx context.Context, plaintextKey string) (*models.Credential, error) {
	keyHash := HashKey(plaintextKey)

	cred, err := s.repo.GetByHash(ctx, keyHash)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	s.touchLastUsed(cred.ID)
	return cred, nil
}

// touchLastUsed records when the key was last seen. Detached from the request
// so a slow or failing store never delays or fails authentication.
func (s *DatabaseStore) touchLastUsed(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.TouchLastUsed(ctx, id); err != nil {
			s.logger.Warn("failed to update last_used_at", "key_id", id, "error", err)
		}
	}()
}
