package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradScrape/internal/domain"
	"GradScrape/internal/gate"
	"GradScrape/internal/infrastructure/storage"
	"GradScrape/internal/usecase"
)

type fakePuller struct {
	status  domain.TriggerStatus
	busy    bool
	lastRun *domain.IngestionRun
	calls   int
}

func (f *fakePuller) StartPull(domain.Trigger) domain.TriggerStatus {
	f.calls++
	return f.status
}

func (f *fakePuller) LastRun() (domain.IngestionRun, bool) {
	if f.lastRun == nil {
		return domain.IngestionRun{}, false
	}
	return *f.lastRun, true
}

func (f *fakePuller) Busy() bool { return f.busy }

type fakeAnalyzer struct {
	result domain.RefreshResult
	err    error
	latest *domain.Aggregates
}

func (f *fakeAnalyzer) Refresh(context.Context) (domain.RefreshResult, error) {
	return f.result, f.err
}

func (f *fakeAnalyzer) Latest() (domain.Aggregates, bool) {
	if f.latest == nil {
		return domain.Aggregates{}, false
	}
	return *f.latest, true
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestPullData(t *testing.T) {
	t.Parallel()

	puller := &fakePuller{status: domain.StatusStarted}
	h := NewHandler(Deps{Ingestion: puller, Analysis: &fakeAnalyzer{}, Store: fakePinger{}})

	rec := serve(t, h, http.MethodPost, "/pull_data")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"started"}`, rec.Body.String())

	puller.status = domain.StatusBusy
	rec = serve(t, h, http.MethodPost, "/pull_data")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"busy":true}`, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/pull_data")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 2, puller.calls)
}

func TestUpdateAnalysis(t *testing.T) {
	t.Parallel()

	summary := &domain.Aggregates{Total: 3, TopInstitution: "MIT"}
	cases := []struct {
		name     string
		analyzer *fakeAnalyzer
		code     int
		contains string
	}{
		{"started", &fakeAnalyzer{result: domain.RefreshResult{Status: domain.StatusStarted, Summary: summary}}, http.StatusOK, `"top_institution":"MIT"`},
		{"busy", &fakeAnalyzer{result: domain.RefreshResult{Status: domain.StatusBusy}}, http.StatusConflict, `"busy":true`},
		{"store down", &fakeAnalyzer{err: domain.ErrStoreUnavailable}, http.StatusInternalServerError, "record store unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(Deps{Ingestion: &fakePuller{}, Analysis: tc.analyzer, Store: fakePinger{}})
			rec := serve(t, h, http.MethodPost, "/update_analysis")
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.contains)
		})
	}
}

func TestAnalysisViewAndStatus(t *testing.T) {
	t.Parallel()

	puller := &fakePuller{busy: true}
	analyzer := &fakeAnalyzer{}
	h := NewHandler(Deps{Ingestion: puller, Analysis: analyzer, Store: fakePinger{}})

	rec := serve(t, h, http.MethodGet, "/analysis")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"busy":true,"summary":null}`, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/status")
	assert.JSONEq(t, `{"busy":true,"last_run":null}`, rec.Body.String())

	analyzer.latest = &domain.Aggregates{Total: 7}
	puller.busy = false
	puller.lastRun = &domain.IngestionRun{Trigger: domain.TriggerHTTP, Status: domain.RunSuccess}

	rec = serve(t, h, http.MethodGet, "/analysis")
	var view struct {
		Busy    bool               `json:"busy"`
		Summary *domain.Aggregates `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Busy)
	require.NotNil(t, view.Summary)
	assert.Equal(t, 7, view.Summary.Total)

	rec = serve(t, h, http.MethodGet, "/status")
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := NewHandler(Deps{Ingestion: &fakePuller{}, Analysis: &fakeAnalyzer{}, Store: fakePinger{}})
	assert.Equal(t, http.StatusNoContent, serve(t, h, http.MethodGet, "/health").Code)

	h = NewHandler(Deps{Ingestion: &fakePuller{}, Analysis: &fakeAnalyzer{}, Store: fakePinger{err: errors.New("connection refused")}})
	rec := serve(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	reg.MustRegister(counter)
	counter.Inc()

	h := NewHandler(Deps{Ingestion: &fakePuller{}, Analysis: &fakeAnalyzer{}, Store: fakePinger{}, Gatherer: reg})
	rec := serve(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "probe_total 1")

	h = NewHandler(Deps{Ingestion: &fakePuller{}, Analysis: &fakeAnalyzer{}, Store: fakePinger{}})
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/metrics").Code)
}

// blockingSource holds extraction open until released.
type blockingSource struct{ release chan struct{} }

func (s blockingSource) FetchRawEntries(context.Context) ([]domain.RawEntry, error) {
	<-s.release
	return nil, nil
}

func TestPullBlocksAnalysisThroughSharedGate(t *testing.T) {
	t.Parallel()

	store, err := storage.NewMemStore()
	require.NoError(t, err)
	g := gate.New()
	source := blockingSource{release: make(chan struct{})}
	ingestion := usecase.NewIngestion(usecase.IngestionDeps{
		Gate:   g,
		Source: source,
		Loader: usecase.NewLoader(store, nil),
	})
	analysis := usecase.NewAnalysis(usecase.AnalysisDeps{Gate: g, Store: store})
	h := NewHandler(Deps{Ingestion: ingestion, Analysis: analysis, Store: store})

	assert.Equal(t, http.StatusAccepted, serve(t, h, http.MethodPost, "/pull_data").Code)
	assert.Equal(t, http.StatusConflict, serve(t, h, http.MethodPost, "/update_analysis").Code)
	assert.Equal(t, http.StatusConflict, serve(t, h, http.MethodPost, "/pull_data").Code)

	close(source.release)
	ingestion.Wait()

	rec := serve(t, h, http.MethodPost, "/update_analysis")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = serve(t, h, http.MethodGet, "/status")
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
}
