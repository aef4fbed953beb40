package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama_gateway/internal/models"
)

func testCredential(used, limit int64, resetAt time.Time) *models.Credential {
	return &models.Credential{
		ID:                uuid.New(),
		Label:             "test",
		MonthlyTokenLimit: limit,
		TokensUsedMonth:   used,
		MonthResetAt:      resetAt,
		IsActive:          true,
	}
}

// fakeAdder implements TokenAdder with the same CASE semantics as the SQL
// statement, serialized by a mutex the way Postgres serializes row updates.
type fakeAdder struct {
	mu      sync.Mutex
	used    int64
	resetAt time.Time
	now     func() time.Time
	calls   int
}

func (f *fakeAdder) AddTokens(ctx context.Context, id uuid.UUID, tokens int64) (int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	now := f.now()
	if !now.Before(f.resetAt) {
		f.used = tokens
		f.resetAt = nextMonthStart(now)
	} else {
		f.used += tokens
	}
	return f.used, f.resetAt, nil
}

func TestCheckAndReserve(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	resetAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	ledger := NewDatabaseLedger(&fakeAdder{})

	t.Run("under limit is allowed", func(t *testing.T) {
		cred := testCredential(500, 1000, resetAt)
		assert.NoError(t, ledger.CheckAndReserve(cred, now))
	})

	t.Run("at limit is rejected", func(t *testing.T) {
		cred := testCredential(1000, 1000, resetAt)
		assert.ErrorIs(t, ledger.CheckAndReserve(cred, now), ErrQuotaExceeded)
	})

	t.Run("over limit is rejected", func(t *testing.T) {
		cred := testCredential(1050, 1000, resetAt)
		assert.ErrorIs(t, ledger.CheckAndReserve(cred, now), ErrQuotaExceeded)
	})

	t.Run("staleness tolerance admits near-limit request", func(t *testing.T) {
		// 950/1000: the pre-check admits even though the request may push
		// consumption past the limit; the commit is the source of truth.
		cred := testCredential(950, 1000, resetAt)
		assert.NoError(t, ledger.CheckAndReserve(cred, now))
	})

	t.Run("expired cycle is allowed regardless of counter", func(t *testing.T) {
		cred := testCredential(999_999, 1000, resetAt)
		afterReset := resetAt.Add(time.Hour)
		assert.NoError(t, ledger.CheckAndReserve(cred, afterReset))
	})
}

func TestDatabaseLedger_Commit(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	resetAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("adds within cycle", func(t *testing.T) {
		adder := &fakeAdder{used: 950, resetAt: resetAt, now: func() time.Time { return now }}
		ledger := NewDatabaseLedger(adder)

		require.NoError(t, ledger.Commit(context.Background(), uuid.New(), 100))
		assert.Equal(t, int64(1050), adder.used)
		assert.Equal(t, resetAt, adder.resetAt)
	})

	t.Run("rollover resets to committed amount", func(t *testing.T) {
		afterReset := time.Date(2025, 7, 3, 8, 0, 0, 0, time.UTC)
		adder := &fakeAdder{used: 999_000, resetAt: resetAt, now: func() time.Time { return afterReset }}
		ledger := NewDatabaseLedger(adder)

		require.NoError(t, ledger.Commit(context.Background(), uuid.New(), 250))
		assert.Equal(t, int64(250), adder.used)
		// Reset advances to the first instant of the month after the commit
		// time, not one month past the stale timestamp.
		assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), adder.resetAt)
	})

	t.Run("zero tokens skips the store round-trip", func(t *testing.T) {
		adder := &fakeAdder{used: 10, resetAt: resetAt, now: func() time.Time { return now }}
		ledger := NewDatabaseLedger(adder)

		require.NoError(t, ledger.Commit(context.Background(), uuid.New(), 0))
		assert.Equal(t, 0, adder.calls)
	})
}

// N concurrent commits within one cycle must sum exactly; no increment may be
// lost to a concurrent writer.
func TestCommit_ConcurrentNoLostUpdates(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	resetAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	adder := &fakeAdder{resetAt: resetAt, now: func() time.Time { return now }}
	ledger := NewDatabaseLedger(adder)

	const n = 100
	var wg sync.WaitGroup
	var want int64
	for i := 1; i <= n; i++ {
		want += int64(i)
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_ = ledger.Commit(context.Background(), uuid.Nil, amount)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, want, adder.used)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("commit accumulates within cycle", func(t *testing.T) {
		ledger := NewMemoryLedger()
		id := uuid.New()

		require.NoError(t, ledger.Commit(ctx, id, 100))
		require.NoError(t, ledger.Commit(ctx, id, 50))

		used, _ := ledger.Used(id)
		assert.Equal(t, int64(150), used)
	})

	t.Run("rollover resets to committed amount", func(t *testing.T) {
		ledger := NewMemoryLedger()
		base := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
		current := base
		ledger.now = func() time.Time { return current }

		id := uuid.New()
		require.NoError(t, ledger.Commit(ctx, id, 500))

		current = time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC)
		require.NoError(t, ledger.Commit(ctx, id, 40))

		used, resetAt := ledger.Used(id)
		assert.Equal(t, int64(40), used)
		assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), resetAt)
	})

	t.Run("concurrent commits sum exactly", func(t *testing.T) {
		ledger := NewMemoryLedger()
		id := uuid.New()

		const n = 200
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = ledger.Commit(ctx, id, 10)
			}()
		}
		wg.Wait()

		used, _ := ledger.Used(id)
		assert.Equal(t, int64(n*10), used)
	})

	t.Run("pre-check uses ledger state", func(t *testing.T) {
		ledger := NewMemoryLedger()
		resetAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
		now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

		cred := testCredential(0, 1000, resetAt)
		ledger.Track(cred)

		require.NoError(t, ledger.CheckAndReserve(cred, now))
		require.NoError(t, ledger.Commit(ctx, cred.ID, 1000))
		assert.ErrorIs(t, ledger.CheckAndReserve(cred, now), ErrQuotaExceeded)
	})
}
