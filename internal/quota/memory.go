package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
)

// MemoryLedger keeps quota state in process memory with the same
// increment-and-rollover semantics as the database ledger. Used in tests and
// single-node development setups without Postgres.
type MemoryLedger struct {
	mu    sync.Mutex
	state map[uuid.UUID]*memoryState
	now   func() time.Time
}

type memoryState struct {
	used    int64
	resetAt time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		state: make(map[uuid.UUID]*memoryState),
		now:   time.Now,
	}
}

// Track seeds ledger state for a credential.
func (l *MemoryLedger) Track(cred *models.Credential) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state[cred.ID] = &memoryState{
		used:    cred.TokensUsedMonth,
		resetAt: cred.MonthResetAt,
	}
}

// CheckAndReserve mirrors the database ledger's pre-check, reading the
// ledger's own state rather than the (possibly seeded) credential snapshot.
func (l *MemoryLedger) CheckAndReserve(cred *models.Credential, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.state[cred.ID]
	if !ok {
		return nil
	}
	if !now.Before(s.resetAt) {
		return nil
	}
	if s.used >= cred.MonthlyTokenLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// Commit applies the increment under the ledger lock, resetting the counter
// to exactly the committed amount when the cycle has rolled over.
func (l *MemoryLedger) Commit(ctx context.Context, credentialID uuid.UUID, tokens int64) error {
	if tokens <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s, ok := l.state[credentialID]
	if !ok {
		s = &memoryState{resetAt: nextMonthStart(now)}
		l.state[credentialID] = s
	}

	if !now.Before(s.resetAt) {
		s.used = tokens
		s.resetAt = nextMonthStart(now)
	} else {
		s.used += tokens
	}
	return nil
}

// Used returns the current consumption and reset time for a credential.
func (l *MemoryLedger) Used(credentialID uuid.UUID) (int64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.state[credentialID]
	if !ok {
		return 0, time.Time{}
	}
	return s.used, s.resetAt
}

// nextMonthStart returns the first instant of the month after now, in UTC.
func nextMonthStart(now time.Time) time.Time {
	year, month, _ := now.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
