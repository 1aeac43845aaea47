package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunLogger records every poll attempt.
type RunLogger interface {
	LogPollRun(ctx context.Context, run PollRun) error
}

type PollResult struct {
	RunID  string       `json:"run_id"`
	Sample Sample       `json:"sample"`
	Sinks  []SinkResult `json:"sinks"`
}

// Poller runs one fetch, normalize and append cycle per call. Calls are
// serialized so there is a single writer to the sinks.
type Poller struct {
	fetcher Fetcher
	mac     string
	sinks   []RecordSink
	runs    RunLogger
	metrics *PollMetrics
	log     *slog.Logger
	now     func() time.Time
	notify  []func(PollResult)
	mu      sync.Mutex
}

type PollerOption func(*Poller)

func WithRunLog(r RunLogger) PollerOption {
	return func(p *Poller) {
		if r != nil {
			p.runs = r
		}
	}
}

func WithMetrics(m *PollMetrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// WithNotify registers fn to be called after every stored sample.
func WithNotify(fn func(PollResult)) PollerOption {
	return func(p *Poller) { p.notify = append(p.notify, fn) }
}

func NewPoller(f Fetcher, mac string, sinks []RecordSink, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher: f,
		mac:     NormalizeMAC(mac),
		sinks:   sinks,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) MAC() string { return p.mac }

// PollOnce fetches the payload and appends one sample to every sink. Nothing
// is appended when the fetch fails or the interface is missing.
func (p *Poller) PollOnce(ctx context.Context) (PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	res := PollResult{RunID: uuid.NewString()}
	outcome := OutcomeOK

	err := p.pollLocked(ctx, &res)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = OutcomeNotFound
	case errors.Is(err, ErrTransport):
		outcome = OutcomeTransport
	default:
		outcome = OutcomeSink
	}
	elapsed := time.Since(start)
	p.metrics.ObservePoll(outcome, elapsed)

	if p.runs != nil {
		run := PollRun{
			ID:         res.RunID,
			Timestamp:  p.now().UTC(),
			DurationMs: elapsed.Milliseconds(),
			Outcome:    outcome,
		}
		if err != nil {
			run.Error = err.Error()
		}
		// use a fresh context so a cancelled request still leaves a trace
		if lerr := p.runs.LogPollRun(context.WithoutCancel(ctx), run); lerr != nil {
			p.log.Warn("poll run not logged", "run_id", res.RunID, "err", lerr)
		}
	}

	if err != nil {
		p.log.Warn("poll failed", "run_id", res.RunID, "outcome", outcome, "err", err)
		return res, err
	}
	p.log.Info("sample stored", "run_id", res.RunID, "mac", res.Sample.MAC,
		"rx_bytes", formatCounter(res.Sample.RxBytes), "tx_bytes", formatCounter(res.Sample.TxBytes))
	for _, fn := range p.notify {
		fn(res)
	}
	return res, nil
}

func (p *Poller) pollLocked(ctx context.Context, res *PollResult) error {
	root, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	reading, err := ResolveCounters(root, p.mac)
	if err != nil {
		return err
	}
	res.Sample = Sample{
		Timestamp: p.now().UTC().Truncate(time.Second),
		MAC:       reading.MAC,
		RxBytes:   reading.RxBytes,
		TxBytes:   reading.TxBytes,
	}

	results, err := AppendAll(ctx, p.sinks, res.Sample)
	res.Sinks = results
	if err != nil {
		return fmt.Errorf("store sample: %w", err)
	}
	p.metrics.ObserveSample(res.Sample)
	return nil
}
