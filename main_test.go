package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ogstra/ifstat/core"
)

func TestPollFailureNamesSavedSinks(t *testing.T) {
	err := fmt.Errorf("store sample: %w", errors.Join(errors.New("sqlite sink: database is locked")))
	res := core.PollResult{Sinks: []core.SinkResult{
		{Sink: "csv"},
		{Sink: "sqlite", Error: "database is locked"},
	}}
	got := pollFailure(err, res)
	want := "error: store sample: sqlite sink: database is locked (saved to: csv)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	res.Sinks[0].Error = "read-only file system"
	if got := pollFailure(err, res); !strings.HasSuffix(got, "(not saved)") {
		t.Fatalf("expected not saved, got %q", got)
	}

	if got := pollFailure(errors.New("boom"), core.PollResult{}); got != "error: boom" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestRunPollPartialSave(t *testing.T) {
	router := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"hwaddr":"d4-ca-6d-9e-f8-a0","rx_bytes":"1024"}]}`)
	}))
	defer router.Close()

	dir := t.TempDir()
	// a directory where the CSV file should be makes the CSV sink fail
	csvPath := filepath.Join(dir, "stats.csv")
	if err := os.Mkdir(csvPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dbPath := filepath.Join(dir, "stats.db")

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"-config", filepath.Join(dir, "missing.json"),
		"-url", router.URL,
		"-mac", "D4:CA:6D:9E:F8:A0",
		"-csv", csvPath,
		"-sqlite", dbPath,
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "(saved to: sqlite)") {
		t.Fatalf("stderr does not name the saved sink:\n%s", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}

	store, err := core.NewStore(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	samples, err := store.Samples(t.Context(), "D4:CA:6D:9E:F8:A0")
	if err != nil || len(samples) != 1 || *samples[0].RxBytes != 1024 {
		t.Fatalf("sqlite holds %+v, %v", samples, err)
	}
}

func TestRunPollSaved(t *testing.T) {
	router := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mac":"AA:BB:CC:DD:EE:FF","rx_bytes":5,"tx_bytes":6}`)
	}))
	defer router.Close()

	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"-config", filepath.Join(dir, "missing.json"),
		"-url", router.URL,
		"-mac", "aabbccddeeff",
		"-csv", filepath.Join(dir, "stats.csv"),
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "Saved: ") || !strings.Contains(stdout.String(), `"rx_bytes":5`) {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}
