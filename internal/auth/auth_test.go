package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama_gateway/internal/models"
)

func TestHashKey(t *testing.T) {
	h1 := HashKey("llm_abc123")
	h2 := HashKey("llm_abc123")
	h3 := HashKey("llm_abc124")

	assert.Equal(t, h1, h2, "digest must be deterministic")
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64, "hex-encoded SHA-256")
}

func TestDigestsEqual(t *testing.T) {
	h := HashKey("some-key")
	assert.True(t, DigestsEqual(h, HashKey("some-key")))
	assert.False(t, DigestsEqual(h, HashKey("other-key")))
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey("llm")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "llm_"))
	assert.Len(t, key, len("llm_")+48)

	for _, c := range strings.TrimPrefix(key, "llm_") {
		assert.Contains(t, keyAlphabet, string(c))
	}

	// Two keys must differ
	key2, err := GenerateKey("llm")
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}

func TestMemoryStore_Lookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	active := &models.Credential{
		ID:       uuid.New(),
		KeyHash:  HashKey("llm_active"),
		Label:    "active-key",
		IsActive: true,
	}
	inactive := &models.Credential{
		ID:       uuid.New(),
		KeyHash:  HashKey("llm_revoked"),
		Label:    "revoked-key",
		IsActive: false,
	}
	store.Add("llm_active", active)
	store.Add("llm_revoked", inactive)

	t.Run("matching active key verifies", func(t *testing.T) {
		cred, err := store.Lookup(ctx, "llm_active")
		require.NoError(t, err)
		assert.Equal(t, active.ID, cred.ID)
		assert.NotNil(t, cred.LastUsedAt)
	})

	t.Run("inactive key never verifies even with correct secret", func(t *testing.T) {
		_, err := store.Lookup(ctx, "llm_revoked")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("unknown key fails", func(t *testing.T) {
		_, err := store.Lookup(ctx, "llm_nope")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestMemoryStore_Deactivate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cred := &models.Credential{KeyHash: HashKey("llm_key"), Label: "key"}
	require.NoError(t, store.Create(ctx, cred))

	_, err := store.Lookup(ctx, "llm_key")
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, cred.ID))

	_, err = store.Lookup(ctx, "llm_key")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Deactivating twice reports not found
	err = store.Deactivate(ctx, cred.ID)
	assert.Error(t, err)
}

func TestAdminJWT_RoundTrip(t *testing.T) {
	secret := []byte("admin-secret")

	token, expiresAt, err := GenerateAdminJWT(secret)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Greater(t, expiresAt, int64(0))

	assert.NoError(t, ValidateAdminJWT(token, secret))
	assert.Error(t, ValidateAdminJWT(token, []byte("wrong-secret")))
	assert.Error(t, ValidateAdminJWT("not-a-token", secret))
}
