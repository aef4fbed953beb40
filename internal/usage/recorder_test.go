package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama_gateway/internal/models"
	"ollama_gateway/internal/queue"
	"ollama_gateway/internal/quota"
)

type fakeStore struct {
	mu      sync.Mutex
	records []*models.UsageRecord
	failN   int
}

func (s *fakeStore) Create(ctx context.Context, record *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failN > 0 {
		s.failN--
		return errors.New("store unavailable")
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type failingLedger struct{}

func (failingLedger) CheckAndReserve(cred *models.Credential, now time.Time) error { return nil }
func (failingLedger) Commit(ctx context.Context, id uuid.UUID, tokens int64) error {
	return errors.New("ledger unavailable")
}

func testConfig() *queue.Config {
	config := queue.DefaultConfig("usage-test")
	config.BatchSize = 10
	config.BatchTimeout = 20 * time.Millisecond
	config.MaxRetries = 2
	config.RetryBackoff = 5 * time.Millisecond
	return config
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestRecorder_CommitsAndStores(t *testing.T) {
	config := testConfig()
	q := queue.NewMemoryQueue(config)
	defer q.Close()

	ledger := quota.NewMemoryLedger()
	store := &fakeStore{}
	recorder := NewRecorder(q, nil, ledger, store, config)

	recorder.Start(context.Background())
	defer recorder.Stop()

	keyID := uuid.New()
	record := NewUsageRecord(keyID, "llama3", "/v1/chat/completions", 120, 80, 350.5)
	assert.Equal(t, 200, record.TotalTokens)

	recorder.Record(record)

	waitFor(t, 2*time.Second, func() bool { return store.count() == 1 })

	used, _ := ledger.Used(keyID)
	assert.Equal(t, int64(200), used)
	assert.Equal(t, "llama3", store.records[0].Model)
}

func TestRecorder_RetriesStoreFailure(t *testing.T) {
	config := testConfig()
	q := queue.NewMemoryQueue(config)
	defer q.Close()

	ledger := quota.NewMemoryLedger()
	store := &fakeStore{failN: 2} // fails twice, succeeds on the final retry
	recorder := NewRecorder(q, nil, ledger, store, config)

	recorder.Start(context.Background())
	defer recorder.Stop()

	keyID := uuid.New()
	recorder.Record(NewUsageRecord(keyID, "llama3", "/v1/generate", 50, 50, 100))

	waitFor(t, 2*time.Second, func() bool { return store.count() == 1 })

	// The commit happened on the first attempt and was not repeated
	used, _ := ledger.Used(keyID)
	assert.Equal(t, int64(100), used)
}

func TestRecorder_DeadLettersAfterRetries(t *testing.T) {
	config := testConfig()
	q := queue.NewMemoryQueue(config)
	defer q.Close()

	dlq := queue.NewMemoryDeadLetterQueue()
	defer dlq.Close()

	store := &fakeStore{}
	recorder := NewRecorder(q, dlq, failingLedger{}, store, config)

	recorder.Start(context.Background())
	defer recorder.Stop()

	recorder.Record(NewUsageRecord(uuid.New(), "llama3", "/v1/chat/completions", 10, 10, 50))

	waitFor(t, 2*time.Second, func() bool {
		items, err := dlq.List(context.Background(), 10)
		return err == nil && len(items) == 1
	})

	items, err := dlq.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Contains(t, items[0].Error, "ledger unavailable")
	assert.Equal(t, 0, store.count())
}

func TestRecorder_RecordDoesNotBlockCaller(t *testing.T) {
	config := testConfig()
	q := queue.NewMemoryQueue(config)
	defer q.Close()

	// Worker never started; Record must still return promptly
	recorder := NewRecorder(q, nil, quota.NewMemoryLedger(), &fakeStore{}, config)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			recorder.Record(NewUsageRecord(uuid.New(), "llama3", "/v1/generate", 1, 1, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked the caller")
	}

	length, err := recorder.QueueLength(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, length)
}

func TestRecorder_StopDrainsBatchInHand(t *testing.T) {
	config := testConfig()
	q := queue.NewMemoryQueue(config)
	defer q.Close()

	ledger := quota.NewMemoryLedger()
	store := &fakeStore{}
	recorder := NewRecorder(q, nil, ledger, store, config)

	recorder.Start(context.Background())

	keyID := uuid.New()
	for i := 0; i < 5; i++ {
		recorder.Record(NewUsageRecord(keyID, "llama3", "/v1/chat/completions", 10, 0, 10))
	}

	waitFor(t, 2*time.Second, func() bool { return store.count() == 5 })
	require.NoError(t, recorder.Stop())

	used, _ := ledger.Used(keyID)
	assert.Equal(t, int64(50), used)
}
