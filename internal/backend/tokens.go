package backend

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts tokens for usage accounting when the backend does
// not report counts itself. Local models have no published tokenizer here,
// so cl100k_base is used as a stand-in; it only needs to be consistent, the
// same text must always yield the same count.
type TokenEstimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenEstimator creates a token estimator.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// Estimate returns the token count for text, at least 1 for non-empty text.
// When the encoding data is not available it falls back to a rough 4
// characters per token.
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.encoding = enc
		}
	})

	var n int
	if e.encoding != nil {
		n = len(e.encoding.Encode(text, nil, nil))
	} else {
		n = len(text) / 4
	}

	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessages returns the token count for a conversation, with a small
// per-message overhead for the role framing.
func (e *TokenEstimator) EstimateMessages(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += 3
		total += e.Estimate(msg.Content)
	}
	return total
}
