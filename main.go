package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Ogstra/ifstat/api"
	"github.com/Ogstra/ifstat/core"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ifstat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.json", "Path to config file (.json or .yaml)")
	url := fs.String("url", core.DefaultEndpointURL, "Router REST interface endpoint")
	mac := fs.String("mac", core.DefaultTargetMAC, "MAC address of the interface to record")
	csvPath := fs.String("csv", core.DefaultCSVPath, `CSV output path ("none" disables)`)
	dbPath := fs.String("sqlite", "", "SQLite database path (optional)")
	user := fs.String("user", "", "Basic auth user (env IFSTAT_USER or api)")
	password := fs.String("password", "", "Basic auth password (env IFSTAT_PASSWORD or counter)")
	insecure := fs.Bool("insecure", false, "Skip TLS certificate verification")
	timeout := fs.Float64("timeout", core.DefaultTimeoutSec, "Request timeout in seconds")
	serve := fs.Bool("serve", false, "Run the dashboard server")
	report := fs.Bool("report", false, "Print the delta table for stored samples")
	listen := fs.String("listen", "", "Dashboard listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	// explicit flags win over file and environment
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.EndpointURL = *url
		case "mac":
			cfg.TargetMAC = *mac
		case "csv":
			cfg.CSVPath = *csvPath
		case "sqlite":
			cfg.DatabasePath = *dbPath
		case "user":
			cfg.Username = *user
		case "password":
			cfg.Password = *password
		case "insecure":
			cfg.Insecure = *insecure
		case "timeout":
			cfg.TimeoutSec = *timeout
		case "listen":
			cfg.ListenAddr = *listen
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logger := core.BuildLogger(cfg, stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, store, err := core.Sinks(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if store != nil {
		defer store.Close()
	}
	source := core.Source(cfg, store)

	switch {
	case *report:
		return runReport(ctx, cfg, source, stdout, stderr)
	case *serve:
		return runServer(ctx, cfg, sinks, store, source, logger, stderr)
	default:
		return runPoll(ctx, cfg, sinks, store, logger, stdout, stderr)
	}
}

func runPoll(ctx context.Context, cfg *core.Config, sinks []core.RecordSink, store *core.Store, logger *slog.Logger, stdout, stderr io.Writer) int {
	opts := []core.PollerOption{core.WithLogger(logger)}
	if store != nil {
		opts = append(opts, core.WithRunLog(store))
	}
	poller := core.NewPoller(core.NewRouterClient(cfg), cfg.TargetMAC, sinks, opts...)

	res, err := poller.PollOnce(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			fmt.Fprintf(stderr, "error: MAC %s not found in response\n", core.NormalizeMAC(cfg.TargetMAC))
		} else {
			fmt.Fprintln(stderr, pollFailure(err, res))
		}
		return 1
	}

	out, _ := json.Marshal(map[string]any{
		"timestamp": core.FormatTimestamp(res.Sample.Timestamp),
		"mac":       res.Sample.MAC,
		"rx_bytes":  res.Sample.RxBytes,
		"tx_bytes":  res.Sample.TxBytes,
	})
	fmt.Fprintf(stdout, "Saved: %s\n", out)
	return 0
}

// pollFailure renders a failed poll, naming the sinks that still stored the
// sample when only some of them failed.
func pollFailure(err error, res core.PollResult) string {
	msg := "error: " + strings.ReplaceAll(err.Error(), "\n", "; ")
	if len(res.Sinks) == 0 {
		return msg
	}
	var saved []string
	for _, r := range res.Sinks {
		if r.Error == "" {
			saved = append(saved, r.Sink)
		}
	}
	if len(saved) == 0 {
		return msg + " (not saved)"
	}
	return msg + " (saved to: " + strings.Join(saved, ", ") + ")"
}

func runReport(ctx context.Context, cfg *core.Config, source core.SampleSource, stdout, stderr io.Writer) int {
	samples, err := source.Samples(ctx, cfg.TargetMAC)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if len(samples) < 2 {
		fmt.Fprintf(stdout, "%d sample(s) stored for %s, need at least 2\n", len(samples), core.NormalizeMAC(cfg.TargetMAC))
		return 0
	}
	if err := core.WriteTable(stdout, core.TableRows(core.Deltas(samples), time.Local)); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runServer(ctx context.Context, cfg *core.Config, sinks []core.RecordSink, store *core.Store, source core.SampleSource, logger *slog.Logger, stderr io.Writer) int {
	reg := prometheus.NewRegistry()
	metrics := core.NewPollMetrics(reg)
	hub := api.NewHub(logger)

	opts := []core.PollerOption{core.WithLogger(logger), core.WithMetrics(metrics)}
	if store != nil {
		opts = append(opts, core.WithRunLog(store))
	}
	srv := api.NewServer(cfg, api.Options{
		Source:   source,
		Store:    store,
		Hub:      hub,
		Gatherer: reg,
		Logger:   logger,
	})
	opts = append(opts, core.WithNotify(srv.OnSample))
	srv.SetPoller(core.NewPoller(core.NewRouterClient(cfg), cfg.TargetMAC, sinks, opts...))

	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
