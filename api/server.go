package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ogstra/ifstat/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	config   *core.Config
	source   core.SampleSource
	store    *core.Store
	poller   *core.Poller
	hub      *Hub
	gatherer prometheus.Gatherer
	log      *slog.Logger
	loc      *time.Location
}

type Options struct {
	Source   core.SampleSource
	Store    *core.Store // nil when no SQLite sink is configured
	Poller   *core.Poller
	Hub      *Hub
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Location *time.Location
}

func NewServer(cfg *core.Config, opts Options) *Server {
	s := &Server{
		config:   cfg,
		source:   opts.Source,
		store:    opts.Store,
		poller:   opts.Poller,
		hub:      opts.Hub,
		gatherer: opts.Gatherer,
		log:      opts.Logger,
		loc:      opts.Location,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.hub == nil {
		s.hub = NewHub(s.log)
	}
	return s
}

// secure accepts either the static API key or a bearer token issued by
// /api/login. With neither configured the API is open.
func (s *Server) secure(handler http.HandlerFunc) http.HandlerFunc {
	if s.config.APIKey == "" && s.config.JWTSecret == "" {
		return handler
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey != "" && r.Header.Get("X-API-Key") == s.config.APIKey {
			handler(w, r)
			return
		}
		if s.config.JWTSecret != "" {
			if sub, err := s.verifyBearer(r); err == nil {
				handler(w, r.WithContext(withUser(r.Context(), sub)))
				return
			}
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.HandleFunc("GET /api/samples", s.secure(s.handleGetSamples))
	mux.HandleFunc("GET /api/deltas", s.secure(s.handleGetDeltas))
	mux.HandleFunc("GET /api/series", s.secure(s.handleGetSeries))
	mux.HandleFunc("GET /api/chart", s.secure(s.handleGetChart))
	mux.HandleFunc("GET /api/chart.svg", s.secure(s.handleChartSVG))
	mux.HandleFunc("POST /api/fetch", s.secure(s.handleFetch))
	mux.HandleFunc("GET /api/runs", s.secure(s.handleGetRuns))
	mux.HandleFunc("GET /api/ws", s.secure(s.hub.serveWS))
	return mux
}

// Run serves the dashboard until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.log.Info("dashboard listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// SetPoller attaches the poller after construction, since the poller's
// notify hook points back at the server.
func (s *Server) SetPoller(p *core.Poller) {
	s.poller = p
}

// OnSample is wired to the poller so open dashboards refresh.
func (s *Server) OnSample(res core.PollResult) {
	s.hub.Broadcast("sample", res.Sample)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.store != nil {
		n, err := s.store.CountSamples(r.Context())
		if err != nil {
			s.log.Error("count samples", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		resp["samples"] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error  string `json:"error"`
	Notice bool   `json:"notice,omitempty"`
}
