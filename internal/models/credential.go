package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential represents one issued API key, managed by the admin API.
// The raw key is never stored; only its SHA-256 digest is kept in key_hash.
type Credential struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	KeyHash           string     `db:"key_hash" json:"-"`
	Label             string     `db:"label" json:"label"`
	OwnerEmail        *string    `db:"owner_email" json:"owner_email,omitempty"`
	RateLimitPerMin   int        `db:"rate_limit_per_min" json:"rate_limit_per_min"`
	MonthlyTokenLimit int64      `db:"monthly_token_limit" json:"monthly_token_limit"`
	TokensUsedMonth   int64      `db:"tokens_used_month" json:"tokens_used_month"`
	MonthResetAt      time.Time  `db:"month_reset_at" json:"month_reset_at"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt        *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// CycleExpired reports whether the monthly accounting cycle has rolled over.
// Consumption recorded before the reset timestamp no longer counts.
func (c *Credential) CycleExpired(now time.Time) bool {
	return !now.Before(c.MonthResetAt)
}

// RemainingTokens returns how many tokens the credential may still consume
// this cycle, based on the last known consumption value. The value can be
// stale by the in-flight requests that have not committed yet.
func (c *Credential) RemainingTokens(now time.Time) int64 {
	if c.CycleExpired(now) {
		return c.MonthlyTokenLimit
	}
	remaining := c.MonthlyTokenLimit - c.TokensUsedMonth
	if remaining < 0 {
		return 0
	}
	return remaining
}
