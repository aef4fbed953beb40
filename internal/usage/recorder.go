// Package usage records what each request consumed, off the response path.
// Handlers hand a finished record to the Recorder and move on; a background
// worker commits the tokens to the quota ledger and persists the record.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
	"ollama_gateway/internal/queue"
	"ollama_gateway/internal/quota"
	"ollama_gateway/internal/utils"
)

// UsageStore persists finished usage records. *storage.UsageRepository
// satisfies it.
type UsageStore interface {
	Create(ctx context.Context, record *models.UsageRecord) error
}

// Recorder accepts usage records from handlers and processes them
// asynchronously. A record that cannot be accepted is dropped; the response
// already went out and must not be held up or failed retroactively.
type Recorder struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	ledger      quota.Ledger
	store       UsageStore
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewRecorder creates a usage recorder draining into the given ledger and store.
func NewRecorder(q queue.Queue, dlq queue.DeadLetterQueue, ledger quota.Ledger, store UsageStore, config *queue.Config) *Recorder {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &Recorder{
		queue:       q,
		dlq:         dlq,
		ledger:      ledger,
		store:       store,
		config:      config,
		logger:      utils.NewLogger("usage-recorder"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine.
func (r *Recorder) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop shuts the worker down after it finishes the batch in hand.
func (r *Recorder) Stop() error {
	close(r.stopChan)
	<-r.stoppedChan
	return nil
}

// Record hands a usage record to the background worker. It never blocks on
// processing; an enqueue failure is logged and the record is lost.
func (r *Recorder) Record(record *models.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.queue.Enqueue(ctx, record); err != nil {
		r.logger.Error("Failed to enqueue usage record",
			"api_key_id", record.APIKeyID,
			"error", err)
	}
}

// QueueLength returns the number of records waiting to be processed.
func (r *Recorder) QueueLength(ctx context.Context) (int, error) {
	return r.queue.Length(ctx)
}

// DeadLetterItems returns records that exhausted their retries.
func (r *Recorder) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if r.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return r.dlq.List(ctx, maxItems)
}

// run is the main worker loop.
func (r *Recorder) run(ctx context.Context) {
	defer close(r.stoppedChan)

	for {
		select {
		case <-r.stopChan:
			r.logger.Info("Usage recorder stopping")
			return
		case <-ctx.Done():
			r.logger.Info("Usage recorder context cancelled")
			return
		default:
			r.processBatch(ctx)
		}
	}
}

// processBatch drains and processes one batch of usage records.
func (r *Recorder) processBatch(ctx context.Context) {
	items, err := r.queue.DequeueWithTimeout(ctx, r.config.BatchSize, r.config.BatchTimeout)
	if err != nil {
		if err == queue.ErrQueueClosed || ctx.Err() != nil {
			return
		}
		r.logger.Error("Failed to dequeue usage records", "error", err)
		time.Sleep(1 * time.Second) // back off on error
		return
	}

	if len(items) == 0 {
		return
	}

	r.logger.Debug("Processing usage batch", "count", len(items))

	for _, item := range items {
		if err := r.processItem(ctx, item); err != nil {
			r.logger.Error("Failed to process usage record", "error", err)
		}
	}
}

// processItem commits one record's tokens and persists it, with retries.
// The ledger commit comes first; a record that cannot be stored is still
// counted against the quota.
func (r *Recorder) processItem(ctx context.Context, item interface{}) error {
	var record models.UsageRecord
	if err := r.unmarshalItem(item, &record); err != nil {
		r.logger.Error("Failed to unmarshal usage record", "error", err)
		return err
	}

	var lastErr error
	committed := false
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			r.logger.Debug("Retrying usage record", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if !committed {
			if err := r.ledger.Commit(ctx, record.APIKeyID, int64(record.TotalTokens)); err != nil {
				lastErr = fmt.Errorf("commit tokens: %w", err)
				continue
			}
			committed = true
		}

		if err := r.store.Create(ctx, &record); err != nil {
			lastErr = fmt.Errorf("store usage record: %w", err)
			continue
		}

		r.logger.Debug("Usage record processed",
			"api_key_id", record.APIKeyID,
			"model", record.Model,
			"total_tokens", record.TotalTokens)
		return nil
	}

	if r.dlq != nil {
		if err := r.dlq.Add(ctx, record, lastErr); err != nil {
			r.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			r.logger.Warn("Usage record moved to DLQ",
				"api_key_id", record.APIKeyID,
				"error", lastErr)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// unmarshalItem normalizes queue items back into a UsageRecord. Memory
// queues carry the struct through, Redis queues carry JSON.
func (r *Recorder) unmarshalItem(item interface{}, record *models.UsageRecord) error {
	switch v := item.(type) {
	case *models.UsageRecord:
		*record = *v
		return nil
	case models.UsageRecord:
		*record = v
		return nil
	case []byte:
		return json.Unmarshal(v, record)
	case json.RawMessage:
		return json.Unmarshal(v, record)
	default:
		return fmt.Errorf("unexpected queue item type %T", item)
	}
}

// NewUsageRecord builds a record for a finished request.
func NewUsageRecord(apiKeyID uuid.UUID, model, endpoint string, promptTokens, completionTokens int, responseTimeMS float64) *models.UsageRecord {
	return &models.UsageRecord{
		ID:               uuid.New(),
		APIKeyID:         apiKeyID,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Endpoint:         endpoint,
		ResponseTimeMS:   responseTimeMS,
		CreatedAt:        time.Now().UTC(),
	}
}
