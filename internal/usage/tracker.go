package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shadebot/internal/logging"
)

type contextKey struct{}

type operationKey struct{}

// UsageData is the root structure stored on disk.
type UsageData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds token counters broken down by dimension.
type AggregatedStats struct {
	Total       TokenCounts            `json:"total"`
	ByProvider  map[string]TokenCounts `json:"by_provider"`
	ByModel     map[string]TokenCounts `json:"by_model"`
	ByOperation map[string]TokenCounts `json:"by_operation"` // classify, edge_case, generate
	ByHandler   map[string]TokenCounts `json:"by_handler"`
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Calls  int64 `json:"calls"`
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Calls++
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}

// Tracker records completion token usage and persists it as JSON.
type Tracker struct {
	mu        sync.Mutex
	data      UsageData
	filePath  string
	dirty     bool
	saveDelay time.Duration
}

// NewTracker creates a tracker persisting to dir/usage.json. An empty dir
// keeps usage in memory only.
func NewTracker(dir string) (*Tracker, error) {
	t := &Tracker{
		data:      UsageData{Version: "1.0"},
		saveDelay: 5 * time.Second,
	}
	t.data.Aggregate.init()

	if dir == "" {
		return t, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}
	t.filePath = filepath.Join(dir, "usage.json")
	if err := t.Load(); err != nil {
		logging.Get(logging.CategoryAPI).Warn("usage file %s unreadable, starting empty: %v", t.filePath, err)
	}
	return t, nil
}

func (a *AggregatedStats) init() {
	if a.ByProvider == nil {
		a.ByProvider = make(map[string]TokenCounts)
	}
	if a.ByModel == nil {
		a.ByModel = make(map[string]TokenCounts)
	}
	if a.ByOperation == nil {
		a.ByOperation = make(map[string]TokenCounts)
	}
	if a.ByHandler == nil {
		a.ByHandler = make(map[string]TokenCounts)
	}
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	if t.filePath == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}
	t.data.Aggregate.init()
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = false
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	if t.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records one completion call.
func (t *Tracker) Track(ctx context.Context, provider, model, operation string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	handler := "unknown"
	if v, ok := ctx.Value(operationKey{}).(string); ok && v != "" {
		handler = v
	}

	t.data.Aggregate.Total.Add(input, output)
	addToMap(t.data.Aggregate.ByProvider, provider, input, output)
	addToMap(t.data.Aggregate.ByModel, model, input, output)
	addToMap(t.data.Aggregate.ByOperation, operation, input, output)
	addToMap(t.data.Aggregate.ByHandler, handler, input, output)

	// debounced auto-save
	if !t.dirty && t.filePath != "" {
		t.dirty = true
		time.AfterFunc(t.saveDelay, func() {
			if err := t.Save(); err != nil {
				logging.Get(logging.CategoryAPI).Warn("usage save failed: %v", err)
			}
		})
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByOperation = copyTokenCountsMap(stats.ByOperation)
	stats.ByHandler = copyTokenCountsMap(stats.ByHandler)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}

// WithHandler tags the context with the dispatcher handler issuing calls.
func WithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, operationKey{}, handler)
}

// TrackFromContext records usage on the tracker carried by ctx, if any.
func TrackFromContext(ctx context.Context, provider, model, operation string, input, output int) {
	if t := FromContext(ctx); t != nil {
		t.Track(ctx, provider, model, operation, input, output)
	}
}
