package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CheckMateScan/go-api/checkmate/store"
)

// Manager caches the latest report in the KV store so the metrics endpoint
// can serve dashboards without re-aggregating on every request.
type Manager struct {
	kv         store.KVStore
	calculator *Calculator
}

// NewManager creates a Manager over the given KV store and calculator.
func NewManager(kv store.KVStore, calculator *Calculator) *Manager {
	return &Manager{kv: kv, calculator: calculator}
}

// Refresh recomputes the report and stores it under the well-known key.
func (m *Manager) Refresh(ctx context.Context) (*Report, error) {
	report, err := m.calculator.Calculate(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics report: %w", err)
	}
	if err := m.kv.SetValue(ctx, store.MetricsReportKey, string(payload)); err != nil {
		// Serve the fresh report even when the cache write fails.
		slog.Warn("cache metrics report failed", "error", err)
	}
	return report, nil
}

// Latest returns the cached report, recomputing when the cache is empty or
// unreadable.
func (m *Manager) Latest(ctx context.Context) (*Report, error) {
	raw, err := m.kv.GetValue(ctx, store.MetricsReportKey)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			slog.Warn("read cached metrics report failed", "error", err)
		}
		return m.Refresh(ctx)
	}

	var report Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		slog.Warn("decode cached metrics report failed", "error", err)
		return m.Refresh(ctx)
	}
	return &report, nil
}
