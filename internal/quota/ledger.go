// Package quota tracks monthly token consumption per credential.
//
// The ledger splits quota enforcement in two: a cheap pre-check evaluated
// before the backend call, and an atomic commit applied after it with the
// actual token usage. The pre-check reads the credential snapshot loaded at
// authentication time, so it can be stale by the tokens of requests still in
// flight (plus commits hidden behind the credential cache TTL). That bounded
// overrun is accepted; the commit is the source of truth and once it lands,
// the next pre-check rejects.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
)

// ErrQuotaExceeded is returned when the monthly token allowance is spent.
var ErrQuotaExceeded = errors.New("monthly token limit reached")

// Ledger enforces and accounts monthly token quotas.
type Ledger interface {
	// CheckAndReserve decides from the credential's last known consumption
	// whether the request may proceed. When the cycle reset timestamp has
	// passed, consumption counts as zero regardless of the stored value.
	CheckAndReserve(cred *models.Credential, now time.Time) error

	// Commit adds the actual token usage to the credential's counter,
	// rolling the cycle over when due. Implementations must apply the whole
	// read-modify-write atomically against the backing store.
	Commit(ctx context.Context, credentialID uuid.UUID, tokens int64) error
}

// TokenAdder is the store-side atomic increment-with-rollover operation.
// *storage.CredentialRepository satisfies it.
type TokenAdder interface {
	AddTokens(ctx context.Context, id uuid.UUID, tokens int64) (used int64, resetAt time.Time, err error)
}

// DatabaseLedger delegates commits to the store's atomic increment.
type DatabaseLedger struct {
	store TokenAdder
}

// NewDatabaseLedger creates a ledger backed by the credential store.
func NewDatabaseLedger(store TokenAdder) *DatabaseLedger {
	return &DatabaseLedger{store: store}
}

// CheckAndReserve applies the pre-check against the credential snapshot.
func (l *DatabaseLedger) CheckAndReserve(cred *models.Credential, now time.Time) error {
	if cred.CycleExpired(now) {
		return nil
	}
	if cred.TokensUsedMonth >= cred.MonthlyTokenLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// Commit records the usage via a single atomic store round-trip.
func (l *DatabaseLedger) Commit(ctx context.Context, credentialID uuid.UUID, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	_, _, err := l.store.AddTokens(ctx, credentialID, tokens)
	return err
}
