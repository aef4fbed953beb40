package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Scrape(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordRequest("/v1/chat/completions", 200, 150*time.Millisecond)
	m.RecordRequest("/v1/chat/completions", 429, time.Millisecond)
	m.RecordRejection("/v1/chat/completions", "rate_limited")
	m.RecordTokens("llama3", 120, 80)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.HTTPHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `gateway_requests_total{endpoint="/v1/chat/completions",status_code="200"} 1`)
	assert.Contains(t, body, `gateway_requests_total{endpoint="/v1/chat/completions",status_code="429"} 1`)
	assert.Contains(t, body, `gateway_rejections_total{endpoint="/v1/chat/completions",reason="rate_limited"} 1`)
	assert.Contains(t, body, `gateway_tokens_total{kind="prompt",model="llama3"} 120`)
	assert.Contains(t, body, `gateway_tokens_total{kind="completion",model="llama3"} 80`)
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()

	// Must not panic
	m.RecordRequest("/v1/generate", 200, time.Second)
	m.RecordRejection("/v1/generate", "quota_exceeded")
	m.RecordTokens("llama3", 1, 1)

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 204, rec.Code)
	assert.True(t, strings.TrimSpace(rec.Body.String()) == "")
}
