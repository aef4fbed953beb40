package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
)

// CredentialRepository handles api_keys table operations with caching
type CredentialRepository struct {
	db    *DB
	cache *LRUCache
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{
		db:    db,
		cache: db.CredentialCache(),
	}
}

const credentialColumns = `
	id, key_hash, label, owner_email, rate_limit_per_min, monthly_token_limit,
	tokens_used_month, month_reset_at, is_active, created_at, last_used_at
`

// GetByHash retrieves an active credential by its key digest (with caching).
// Inactive credentials are never returned, even when the digest matches.
func (r *CredentialRepository) GetByHash(ctx context.Context, keyHash string) (*models.Credential, error) {
	if cached, found := r.cache.Get(keyHash); found {
		return cached.(*models.Credential), nil
	}

	var cred models.Credential
	query := `
		SELECT ` + credentialColumns + `
		FROM api_keys
		WHERE key_hash = $1 AND is_active = TRUE
	`

	err := r.db.conn.GetContext(ctx, &cred, query, keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	r.cache.Set(keyHash, &cred)
	return &cred, nil
}

// GetByID retrieves a credential by ID (uncached, active or not)
func (r *CredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	var cred models.Credential
	query := `
		SELECT ` + credentialColumns + `
		FROM api_keys
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &cred, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

// Create inserts a new credential
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO api_keys (id, key_hash, label, owner_email, rate_limit_per_min, monthly_token_limit)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING tokens_used_month, month_reset_at, is_active, created_at
	`

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		cred.ID, cred.KeyHash, cred.Label, cred.OwnerEmail,
		cred.RateLimitPerMin, cred.MonthlyTokenLimit,
	).Scan(&cred.TokensUsedMonth, &cred.MonthResetAt, &cred.IsActive, &cred.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	r.cache.Delete(cred.KeyHash)
	return nil
}

// List returns all credentials, newest first
func (r *CredentialRepository) List(ctx context.Context) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM api_keys
		ORDER BY created_at DESC
	`

	var creds []*models.Credential
	if err := r.db.conn.SelectContext(ctx, &creds, query); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

// Deactivate soft-deletes a credential. Usage history keeps referencing the
// row, so credentials are never physically deleted.
func (r *CredentialRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	var keyHash string
	query := `
		UPDATE api_keys
		SET is_active = FALSE
		WHERE id = $1 AND is_active = TRUE
		RETURNING key_hash
	`

	err := r.db.conn.QueryRowxContext(ctx, query, id).Scan(&keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("failed to deactivate credential: %w", err)
	}

	r.cache.Delete(keyHash)
	return nil
}

// TouchLastUsed updates the last-used timestamp. Best-effort: callers are
// expected to ignore the error.
func (r *CredentialRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch last_used_at: %w", err)
	}
	return nil
}

// AddTokens atomically adds tokens to the monthly counter, rolling the cycle
// over when the reset timestamp has passed. The whole read-modify-write runs
// as one statement inside Postgres, so concurrent commits for the same
// credential serialize on the row and no increment is lost. Reading the row
// first and writing the sum back from Go is not equivalent and must not be
// reintroduced (two concurrent commits would both read the old value).
//
// On rollover the counter restarts at exactly the committed amount and the
// reset timestamp advances to the first instant of the next calendar month,
// computed from the current time rather than the stale timestamp.
func (r *CredentialRepository) AddTokens(ctx context.Context, id uuid.UUID, tokens int64) (used int64, resetAt time.Time, err error) {
	query := `
		UPDATE api_keys
		SET tokens_used_month = CASE
		        WHEN month_reset_at <= NOW() THEN $2::bigint
		        ELSE tokens_used_month + $2::bigint
		    END,
		    month_reset_at = CASE
		        WHEN month_reset_at <= NOW() THEN date_trunc('month', NOW()) + INTERVAL '1 month'
		        ELSE month_reset_at
		    END
		WHERE id = $1
		RETURNING tokens_used_month, month_reset_at, key_hash
	`

	var keyHash string
	err = r.db.conn.QueryRowxContext(ctx, query, id, tokens).Scan(&used, &resetAt, &keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, ErrCredentialNotFound
		}
		return 0, time.Time{}, fmt.Errorf("failed to add tokens: %w", err)
	}

	// Drop the cached snapshot so the next pre-check sees the new counter.
	r.cache.Delete(keyHash)
	return used, resetAt, nil
}
