package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
	"ollama_gateway/internal/storage"
)

// MemoryStore keeps credentials in a map keyed by digest. Useful for local
// development and tests; production uses DatabaseStore.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*models.Credential // key digest -> credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		creds: make(map[string]*models.Credential),
	}
}

// Add registers a credential under the digest of the given raw key.
func (s *MemoryStore) Add(rawKey string, cred *models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[HashKey(rawKey)] = cred
}

// Lookup matches the presented key against stored digests in constant time
// per entry. Inactive credentials never match.
func (s *MemoryStore) Lookup(ctx context.Context, plaintextKey string) (*models.Credential, error) {
	keyHash := HashKey(plaintextKey)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for digest, cred := range s.creds {
		if DigestsEqual(digest, keyHash) && cred.IsActive {
			now := time.Now()
			cred.LastUsedAt = &now
			return cred, nil
		}
	}
	return nil, ErrKeyNotFound
}

// Create stores the credential, mirroring the repository contract.
func (s *MemoryStore) Create(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	cred.IsActive = true
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}
	if cred.MonthResetAt.IsZero() {
		cred.MonthResetAt = startOfNextMonth(time.Now())
	}
	s.creds[cred.KeyHash] = cred
	return nil
}

// List returns all credentials.
func (s *MemoryStore) List(ctx context.Context) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		out = append(out, cred)
	}
	return out, nil
}

// GetByID returns the credential with the given ID.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cred := range s.creds {
		if cred.ID == id {
			return cred, nil
		}
	}
	return nil, storage.ErrCredentialNotFound
}

// Deactivate soft-disables the credential with the given ID.
func (s *MemoryStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.creds {
		if cred.ID == id && cred.IsActive {
			cred.IsActive = false
			return nil
		}
	}
	return storage.ErrCredentialNotFound
}

func startOfNextMonth(now time.Time) time.Time {
	year, month, _ := now.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
