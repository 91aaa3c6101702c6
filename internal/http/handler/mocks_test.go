package handler_test

import (
	"context"

	"notulis.app/bot/internal/service"
)

type mockIngestService struct {
	ingestFn func(ctx context.Context, params service.MessageIngestParams) (*service.MessageIngestResult, error)
	calls    []service.MessageIngestParams
}

func (m *mockIngestService) Ingest(ctx context.Context, params service.MessageIngestParams) (*service.MessageIngestResult, error) {
	m.calls = append(m.calls, params)
	return m.ingestFn(ctx, params)
}

type resultRecorder struct {
	results []string
}

func (r *resultRecorder) RecordWebhookMessage(result string) {
	r.results = append(r.results, result)
}
