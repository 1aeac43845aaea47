package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Ogstra/ifstat/core"
)

type SamplesResponse struct {
	MAC     string        `json:"mac"`
	Samples []core.Sample `json:"samples"`
}

type SelectedSample struct {
	Sample core.Sample       `json:"sample"`
	Delta  *core.DeltaRecord `json:"delta"`
}

type DeltasResponse struct {
	MAC     string             `json:"mac"`
	Records []core.DeltaRecord `json:"records"`
	Table   []core.TableRow    `json:"table"`
}

func (s *Server) targetMAC(r *http.Request) string {
	if mac := r.URL.Query().Get("mac"); mac != "" {
		return core.NormalizeMAC(mac)
	}
	return core.NormalizeMAC(s.config.TargetMAC)
}

func (s *Server) loadSamples(ctx context.Context, mac string) ([]core.Sample, error) {
	if s.source == nil {
		return []core.Sample{}, nil
	}
	return s.source.Samples(ctx, mac)
}

func (s *Server) handleGetSamples(w http.ResponseWriter, r *http.Request) {
	mac := s.targetMAC(r)
	samples, err := s.loadSamples(r.Context(), mac)
	if err != nil {
		s.log.Error("load samples", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	at := r.URL.Query().Get("at")
	if at == "" {
		writeJSON(w, http.StatusOK, SamplesResponse{MAC: mac, Samples: samples})
		return
	}

	ts, err := core.ParseTimestamp(at)
	if err != nil {
		http.Error(w, "Invalid at timestamp", http.StatusBadRequest)
		return
	}
	for i := len(samples) - 1; i >= 0; i-- {
		if !samples[i].Timestamp.Equal(ts) {
			continue
		}
		sel := SelectedSample{Sample: samples[i]}
		if d, ok := core.DeltaEndingAt(core.Deltas(samples[:i+1]), ts); ok {
			d = d.Rounded()
			sel.Delta = &d
		}
		writeJSON(w, http.StatusOK, sel)
		return
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "no sample at " + core.FormatTimestamp(ts), Notice: true})
}

func (s *Server) handleGetDeltas(w http.ResponseWriter, r *http.Request) {
	mac := s.targetMAC(r)
	samples, err := s.loadSamples(r.Context(), mac)
	if err != nil {
		s.log.Error("load samples", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	records := core.Deltas(samples)
	rounded := make([]core.DeltaRecord, len(records))
	for i, d := range records {
		rounded[i] = d.Rounded()
	}
	writeJSON(w, http.StatusOK, DeltasResponse{
		MAC:     mac,
		Records: rounded,
		Table:   core.TableRows(records, s.loc),
	})
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	samples, err := s.loadSamples(r.Context(), s.targetMAC(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	points := core.Series(samples)
	for i := range points {
		points[i] = points[i].Rounded()
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	samples, err := s.loadSamples(r.Context(), s.targetMAC(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, core.Sawtooth(core.Deltas(samples)))
}

func (s *Server) handleChartSVG(w http.ResponseWriter, r *http.Request) {
	samples, err := s.loadSamples(r.Context(), s.targetMAC(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := renderChart(w, core.Sawtooth(core.Deltas(samples)), s.loc); err != nil {
		s.log.Error("render chart", "err", err)
	}
}

// handleFetch runs one poll. A missing interface is reported as a notice,
// not a server error.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		http.Error(w, "Polling disabled", http.StatusServiceUnavailable)
		return
	}
	user, _ := UserFrom(r.Context())
	s.log.Info("fetch requested", "user", user, "remote", r.RemoteAddr)
	res, err := s.poller.PollOnce(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, res)
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Notice: true})
	case errors.Is(err, core.ErrTransport):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []core.PollRun{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	runs, err := s.store.GetPollRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
