package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RecordSink persists samples. Append either writes the whole sample or
// leaves the sink unchanged.
type RecordSink interface {
	Name() string
	Append(ctx context.Context, s Sample) error
}

// SampleSource reads back the samples of one interface in storage order.
type SampleSource interface {
	Samples(ctx context.Context, mac string) ([]Sample, error)
}

// SinkResult reports the outcome of one sink for one sample.
type SinkResult struct {
	Sink  string `json:"sink"`
	Error string `json:"error,omitempty"`
}

// AppendAll appends to every sink in order. A failing sink does not stop the
// others; the failures are joined.
func AppendAll(ctx context.Context, sinks []RecordSink, s Sample) ([]SinkResult, error) {
	results := make([]SinkResult, 0, len(sinks))
	var errs []error
	for _, sink := range sinks {
		r := SinkResult{Sink: sink.Name()}
		if err := sink.Append(ctx, s); err != nil {
			r.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

// Sinks opens the sinks configured in cfg. The returned store is nil when no
// SQLite path is configured; callers close it.
func Sinks(cfg *Config) ([]RecordSink, *Store, error) {
	var sinks []RecordSink
	if cfg.CSVEnabled() {
		sinks = append(sinks, NewCSVStore(cfg.CSVPath))
	}
	var store *Store
	if strings.TrimSpace(cfg.DatabasePath) != "" {
		st, err := NewStore(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.DatabasePath, err)
		}
		store = st
		sinks = append(sinks, st)
	}
	if len(sinks) == 0 {
		return nil, nil, fmt.Errorf("%w: no sink configured", ErrInvalidConfig)
	}
	return sinks, store, nil
}

// Source picks the sample source for views. SQLite is preferred when both
// sinks are configured.
func Source(cfg *Config, store *Store) SampleSource {
	if store != nil {
		return store
	}
	if cfg.CSVEnabled() {
		return NewCSVStore(cfg.CSVPath)
	}
	return nil
}
