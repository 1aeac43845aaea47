package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubFetcher struct {
	doc string
	err error
}

func (f stubFetcher) Fetch(ctx context.Context) (*Node, error) {
	if f.err != nil {
		return nil, f.err
	}
	return DecodeTree(strings.NewReader(f.doc))
}

type memSink struct {
	name    string
	samples []Sample
	err     error
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Append(ctx context.Context, s Sample) error {
	if m.err != nil {
		return m.err
	}
	m.samples = append(m.samples, s)
	return nil
}

type memRuns struct{ runs []PollRun }

func (m *memRuns) LogPollRun(ctx context.Context, run PollRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 10, 0, 0, 999, time.FixedZone("X", 3600))
}

func TestPollOnceStoresSample(t *testing.T) {
	sink := &memSink{name: "mem"}
	runs := &memRuns{}
	reg := prometheus.NewRegistry()
	metrics := NewPollMetrics(reg)
	var notified []PollResult

	p := NewPoller(
		stubFetcher{doc: `{"interfaces":[{"mac":"aa-bb-cc-dd-ee-ff","rx_bytes":1048576,"tx_bytes":"2097152"}]}`},
		"AA:BB:CC:DD:EE:FF", []RecordSink{sink},
		WithRunLog(runs), WithMetrics(metrics), WithLogger(quietLogger()), WithClock(fixedClock),
		WithNotify(func(r PollResult) { notified = append(notified, r) }),
	)

	res, err := p.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(sink.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(sink.samples))
	}
	got := sink.samples[0]
	if got.MAC != "AA:BB:CC:DD:EE:FF" || *got.RxBytes != 1048576 || *got.TxBytes != 2097152 {
		t.Fatalf("unexpected sample %+v", got)
	}
	if FormatTimestamp(got.Timestamp) != "2024-05-01T09:00:00Z" {
		t.Fatalf("timestamp = %s", FormatTimestamp(got.Timestamp))
	}
	if res.RunID == "" || len(res.Sinks) != 1 || res.Sinks[0].Error != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(runs.runs) != 1 || runs.runs[0].Outcome != OutcomeOK || runs.runs[0].ID != res.RunID {
		t.Fatalf("unexpected runs %+v", runs.runs)
	}
	if len(notified) != 1 {
		t.Fatalf("expected notification")
	}
	if v := testutil.ToFloat64(metrics.polls.WithLabelValues(OutcomeOK)); v != 1 {
		t.Fatalf("ok polls = %v", v)
	}
	if v := testutil.ToFloat64(metrics.rxBytes); v != 1048576 {
		t.Fatalf("rx gauge = %v", v)
	}
}

func TestPollOnceNotFoundAppendsNothing(t *testing.T) {
	sink := &memSink{name: "mem"}
	runs := &memRuns{}
	p := NewPoller(stubFetcher{doc: `{"mac":"11:22:33:44:55:66","rx":1}`}, "AA:BB:CC:DD:EE:FF",
		[]RecordSink{sink}, WithRunLog(runs), WithLogger(quietLogger()))

	_, err := p.PollOnce(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(sink.samples) != 0 {
		t.Fatalf("sink touched on not found")
	}
	if len(runs.runs) != 1 || runs.runs[0].Outcome != OutcomeNotFound {
		t.Fatalf("unexpected runs %+v", runs.runs)
	}
}

func TestPollOnceTransportFailure(t *testing.T) {
	sink := &memSink{name: "mem"}
	p := NewPoller(stubFetcher{err: ErrTransport}, "AA:BB:CC:DD:EE:FF", []RecordSink{sink}, WithLogger(quietLogger()))
	if _, err := p.PollOnce(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(sink.samples) != 0 {
		t.Fatalf("sink touched on transport failure")
	}
}

func TestPollOnceSinkFailureReported(t *testing.T) {
	good := &memSink{name: "good"}
	bad := &memSink{name: "bad", err: errors.New("read-only")}
	runs := &memRuns{}
	p := NewPoller(stubFetcher{doc: `{"mac":"AA:BB:CC:DD:EE:FF"}`}, "AA:BB:CC:DD:EE:FF",
		[]RecordSink{bad, good}, WithRunLog(runs), WithLogger(quietLogger()))

	res, err := p.PollOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad sink") {
		t.Fatalf("expected bad sink error, got %v", err)
	}
	if len(good.samples) != 1 {
		t.Fatalf("healthy sink should still be written")
	}
	if res.Sinks[0].Error == "" || res.Sinks[1].Error != "" {
		t.Fatalf("unexpected sink results %+v", res.Sinks)
	}
	if runs.runs[0].Outcome != OutcomeSink {
		t.Fatalf("outcome = %s", runs.runs[0].Outcome)
	}
}

func TestPollThenDeltasEndToEnd(t *testing.T) {
	dir := t.TempDir()
	csvSink := NewCSVStore(filepath.Join(dir, "stats.csv"))
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	docs := []string{
		`{"mac":"AA:BB:CC:DD:EE:FF","rx_bytes":104857600,"tx_bytes":0}`,
		`{"mac":"AA:BB:CC:DD:EE:FF","rx_bytes":157286400,"tx_bytes":0}`,
	}
	for i, doc := range docs {
		now = now.Add(time.Duration(i) * 30 * time.Minute)
		p := NewPoller(stubFetcher{doc: doc}, "AA:BB:CC:DD:EE:FF", []RecordSink{csvSink},
			WithClock(clock), WithLogger(quietLogger()))
		if _, err := p.PollOnce(context.Background()); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	samples, err := csvSink.Samples(context.Background(), "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	recs := Deltas(samples)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	d := recs[0].Rounded()
	if d.DeltaRxMB != 50 || d.RxRatePerHour == nil || *d.RxRatePerHour != 100 {
		t.Fatalf("unexpected %+v", d)
	}
}
