package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ogstra/ifstat/core"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type staticFetcher string

func (f staticFetcher) Fetch(ctx context.Context) (*core.Node, error) {
	return core.DecodeTree(strings.NewReader(string(f)))
}

func testServer(t *testing.T, cfg *core.Config, doc string) (*Server, *core.CSVStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	csv := core.NewCSVStore(filepath.Join(t.TempDir(), "stats.csv"))
	for i, rx := range []int64{100, 150} {
		s := core.Sample{
			Timestamp: t0.Add(time.Duration(i) * 30 * time.Minute),
			MAC:       "AA:BB:CC:DD:EE:FF",
			RxBytes:   core.Int64(rx * core.BytesPerMB),
			TxBytes:   core.Int64(0),
		}
		if err := csv.Append(context.Background(), s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, Options{Source: csv, Gatherer: reg, Logger: logger, Location: time.UTC})
	srv.SetPoller(core.NewPoller(staticFetcher(doc), cfg.TargetMAC, []core.RecordSink{csv},
		core.WithLogger(logger), core.WithMetrics(core.NewPollMetrics(reg))))
	return srv, csv
}

func openConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.TargetMAC = "aa:bb:cc:dd:ee:ff"
	return cfg
}

func TestGetDeltas(t *testing.T) {
	srv, _ := testServer(t, openConfig(), `{}`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/deltas", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp DeltasResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].DeltaRxMB != 50 || *resp.Records[0].RxRatePerHour != 100 {
		t.Fatalf("unexpected records %+v", resp.Records)
	}
	if len(resp.Table) != 1 || resp.Table[0].End != "01.05.24 10:30" {
		t.Fatalf("unexpected table %+v", resp.Table)
	}
}

func TestGetSamplesAt(t *testing.T) {
	srv, _ := testServer(t, openConfig(), `{}`)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples?at=2024-05-01T10:30:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var sel SelectedSample
	if err := json.NewDecoder(rec.Body).Decode(&sel); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sel.Delta == nil || sel.Delta.DeltaRxMB != 50 {
		t.Fatalf("unexpected selection %+v", sel)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples?at=2024-05-01T09:00:00Z", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFetchStoresAndNotFoundIsNotice(t *testing.T) {
	srv, csv := testServer(t, openConfig(), `{"mac":"AABBCCDDEEFF","rx_bytes":1,"tx_bytes":2}`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/fetch", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	samples, _ := csv.Samples(context.Background(), "AA:BB:CC:DD:EE:FF")
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}

	srv, csv = testServer(t, openConfig(), `{"mac":"11:22:33:44:55:66"}`)
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/fetch", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorResponse
	json.NewDecoder(rec.Body).Decode(&body)
	if !body.Notice {
		t.Fatalf("expected notice flag, got %+v", body)
	}
	samples, _ = csv.Samples(context.Background(), "AA:BB:CC:DD:EE:FF")
	if len(samples) != 2 {
		t.Fatalf("not found must not append, got %d samples", len(samples))
	}
}

func TestSecureAPIKeyAndJWT(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := openConfig()
	cfg.APIKey = "k"
	cfg.JWTSecret = "s3cret"
	cfg.AdminUser = "admin"
	cfg.AdminPasswordHash = string(hash)
	srv, _ := testServer(t, cfg, `{}`)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	req.Header.Set("X-API-Key", "k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("api key rejected: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password accepted: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"hunter22"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d", rec.Code)
	}
	var login LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil || login.Token == "" {
		t.Fatalf("no token: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chart", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("token rejected: %d", rec.Code)
	}
	var pts []core.ChartPoint
	if err := json.NewDecoder(rec.Body).Decode(&pts); err != nil || len(pts) != 3 {
		t.Fatalf("chart = %v, %v", pts, err)
	}
}

func TestIndexHealthAndMetrics(t *testing.T) {
	srv, _ := testServer(t, openConfig(), `{"mac":"AA:BB:CC:DD:EE:FF","rx":1}`)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "AA:BB:CC:DD:EE:FF") {
		t.Fatalf("index = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/fetch", nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `ifstat_polls_total{outcome="ok"} 1`) {
		t.Fatalf("metrics missing poll counter:\n%s", rec.Body)
	}
}

func TestChartSVG(t *testing.T) {
	srv, _ := testServer(t, openConfig(), `{}`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chart.svg", nil))
	body := rec.Body.String()
	if !strings.HasPrefix(body, "<svg") || strings.Count(body, "<polyline") != 2 || !strings.Contains(body, "100.0 / 0.0 MB/h") {
		t.Fatalf("unexpected svg:\n%s", body)
	}
}

func TestGetSamplesAtFirstSampleHasNoDelta(t *testing.T) {
	srv, _ := testServer(t, openConfig(), `{}`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples?at=2024-05-01T10:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var sel SelectedSample
	if err := json.NewDecoder(rec.Body).Decode(&sel); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sel.Delta != nil || *sel.Sample.RxBytes != 100*core.BytesPerMB {
		t.Fatalf("unexpected selection %+v", sel)
	}
}

func TestUserFrom(t *testing.T) {
	if _, ok := UserFrom(context.Background()); ok {
		t.Fatalf("empty context has a user")
	}
	user, ok := UserFrom(withUser(context.Background(), "admin"))
	if !ok || user != "admin" {
		t.Fatalf("got %q, %v", user, ok)
	}
}

func TestFetchLogsTokenSubject(t *testing.T) {
	cfg := openConfig()
	cfg.JWTSecret = "s3cret"
	srv, _ := testServer(t, cfg, `{"mac":"AA:BB:CC:DD:EE:FF","rx":1}`)
	var buf bytes.Buffer
	srv.log = slog.New(slog.NewTextHandler(&buf, nil))

	token, err := srv.issueToken("operator", time.Now())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/fetch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(buf.String(), "fetch requested") || !strings.Contains(buf.String(), "user=operator") {
		t.Fatalf("fetch not attributed:\n%s", buf.String())
	}
}

func TestHealthReportsStoredSamples(t *testing.T) {
	st, err := core.NewStore(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	for i := 0; i < 2; i++ {
		s := core.Sample{Timestamp: t0.Add(time.Duration(i) * time.Hour), MAC: "AA:BB:CC:DD:EE:FF", RxBytes: core.Int64(1)}
		if err := st.Append(context.Background(), s); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(openConfig(), Options{Source: st, Store: st, Gatherer: prometheus.NewRegistry(), Logger: logger})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Samples int64  `json:"samples"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Samples != 2 {
		t.Fatalf("unexpected health %+v", body)
	}

	st.Close()
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed store should degrade health, got %d", rec.Code)
	}
}
