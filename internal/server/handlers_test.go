package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/config"
	"github.com/hyperjump/kessan/internal/export"
	"github.com/hyperjump/kessan/internal/indexer"
	"github.com/hyperjump/kessan/internal/models"
)

type mockAnalyzer struct {
	lastKind   string
	lastParams models.Params
	statsErr   error
}

func (m *mockAnalyzer) RunAnalysis(_ context.Context, kind string, params models.Params) *models.Envelope {
	m.lastKind, m.lastParams = kind, params
	if kind == "qa" && strings.TrimSpace(params.Question) == "" {
		return models.Failure(models.KindQA, "No question provided")
	}
	return models.Success(models.KindInsight, &models.Result{
		Insights: "ok", SourceDocuments: 1, Companies: []string{"Apple"}, Quarters: []string{"2023 Q1"},
	})
}

func (m *mockAnalyzer) Companies(context.Context) ([]string, error) {
	return []string{"Apple", "Google"}, nil
}

func (m *mockAnalyzer) Quarters(context.Context) ([]models.Period, error) {
	return []models.Period{{Year: "2023", Quarter: "Q1"}}, nil
}

func (m *mockAnalyzer) Stats(context.Context) (*models.Stats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &models.Stats{State: "populated", TotalDocuments: 3, Companies: []string{"Apple"}}, nil
}

func (m *mockAnalyzer) SuggestQuestions(company string, period *models.Period) []string {
	out := []string{"company=" + company}
	if period != nil {
		out = append(out, "period="+period.String())
	}
	return out
}

type mockIngester struct {
	paths []string
	force bool
}

func (m *mockIngester) IngestPaths(_ context.Context, paths []string, force bool) (*indexer.Report, error) {
	m.paths, m.force = paths, force
	return &indexer.Report{Files: []indexer.FileResult{{Path: paths[0], Chunks: 2}}, Chunks: 2}, nil
}

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestServer(t *testing.T, watch WatchService) (*Server, *mockAnalyzer, *mockIngester) {
	t.Helper()
	analyzer := &mockAnalyzer{}
	ingester := &mockIngester{}
	exporter := export.New(filepath.Join(t.TempDir(), "exports"))
	srv := NewServer(analyzer, ingester, exporter, config.Default(), zap.NewNop(), watch, "")
	return srv, analyzer, ingester
}

func do(t *testing.T, srv *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestHandleAnalyze(t *testing.T) {
	srv, analyzer, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodPost, "/api/v1/analyze", models.Params{AnalysisType: "insight", Company: "Apple"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if analyzer.lastKind != "insight" || analyzer.lastParams.Company != "Apple" {
		t.Errorf("analyzer got kind=%q params=%+v", analyzer.lastKind, analyzer.lastParams)
	}
	var env models.Envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Status != models.StatusSuccess || env.AnalysisType != models.KindInsight {
		t.Errorf("envelope: %+v", env)
	}
	if env.Result == nil || env.Result.SourceDocuments != 1 {
		t.Errorf("result: %+v", env.Result)
	}
}

func TestHandleAnalyze_ErrorEnvelope(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodPost, "/api/v1/analyze", models.Params{AnalysisType: "qa", Question: "  "})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "error" || out["message"] != "No question provided" || out["analysis_type"] != "qa" {
		t.Errorf("envelope: %v", out)
	}
	if _, ok := out["result"]; ok {
		t.Errorf("error envelope carries a result: %v", out)
	}
}

func TestHandleAnalyze_InvalidBody(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodPost, "/api/v1/analyze", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleCatalog(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/companies", nil)
	var companies struct {
		Companies []string `json:"companies"`
	}
	if err := json.NewDecoder(w.Body).Decode(&companies); err != nil {
		t.Fatal(err)
	}
	if len(companies.Companies) != 2 {
		t.Errorf("companies: got %v", companies.Companies)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/quarters", nil)
	var quarters struct {
		Quarters []models.Period `json:"quarters"`
	}
	if err := json.NewDecoder(w.Body).Decode(&quarters); err != nil {
		t.Fatal(err)
	}
	if len(quarters.Quarters) != 1 || quarters.Quarters[0].Quarter != "Q1" {
		t.Errorf("quarters: got %v", quarters.Quarters)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/stats", nil)
	var stats models.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 3 || stats.State != "populated" {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestHandleStats_Error(t *testing.T) {
	srv, analyzer, _ := newTestServer(t, nil)
	analyzer.statsErr = models.Errorf(models.ErrBackendFailure, "catalog unavailable")
	w := do(t, srv, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "catalog unavailable") {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestHandleQuestions(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/questions?company=Apple&year=2023&quarter=q1", nil)
	var out struct {
		Questions []string `json:"questions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	want := []string{"company=Apple", "period=2023 Q1"}
	if len(out.Questions) != 2 || out.Questions[0] != want[0] || out.Questions[1] != want[1] {
		t.Errorf("questions: got %v, want %v", out.Questions, want)
	}
}

func TestHandleIngest(t *testing.T) {
	srv, _, ingester := newTestServer(t, nil)
	w := do(t, srv, http.MethodPost, "/api/v1/ingest", ingestRequest{Paths: []string{"/tmp/Apple_2023_Q1.pdf"}, Force: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if !ingester.force || len(ingester.paths) != 1 {
		t.Errorf("ingester got paths=%v force=%v", ingester.paths, ingester.force)
	}
	var report indexer.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Chunks != 2 {
		t.Errorf("report: %+v", report)
	}

	w = do(t, srv, http.MethodPost, "/api/v1/ingest", ingestRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty paths status: got %d", w.Code)
	}
}

func TestHandleExport(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	env := models.Success(models.KindInsight, &models.Result{
		Insights: "Executive Summary\nGood.", SourceDocuments: 1,
		Companies: []string{"Apple"}, Quarters: []string{"2023 Q1"},
	})
	w := do(t, srv, http.MethodPost, "/api/v1/export", exportRequest{Format: "excel", Envelope: env})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out.Path); err != nil {
		t.Errorf("exported file: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(out.Path), "kessan_insight_") {
		t.Errorf("file name: %s", out.Path)
	}
}

func TestHandleExport_Invalid(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/export", exportRequest{Format: "csv"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported format status: got %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/api/v1/export",
		exportRequest{Format: "pdf", Envelope: models.Failure(models.KindQA, "No question provided")})
	if w.Code != http.StatusBadRequest {
		t.Errorf("error envelope status: got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	srv, _, _ := newTestServer(t, &mockWatchService{dirs: []string{"/tmp/inbox"}})
	w := do(t, srv, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/inbox" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd(t *testing.T) {
	dir := t.TempDir()
	mock := &mockWatchService{}
	srv, _, _ := newTestServer(t, mock)
	w := do(t, srv, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if w.Code != http.StatusCreated {
		t.Errorf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}

	w = do(t, srv, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir + "/nonexistent"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing directory status: got %d", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd_PersistsConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	mock := &mockWatchService{}
	srv := NewServer(&mockAnalyzer{}, &mockIngester{}, export.New(dir), config.Default(), nil, mock, cfgPath)

	w := do(t, srv, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d", w.Code)
	}
	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Watch.Directories) != 1 || saved.Watch.Directories[0] != dir {
		t.Errorf("persisted directories: got %v", saved.Watch.Directories)
	}
}

func TestHandleWatchDirectoriesRemove(t *testing.T) {
	dir := t.TempDir()
	mock := &mockWatchService{dirs: []string{dir}}
	srv, _, _ := newTestServer(t, mock)
	w := do(t, srv, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
}
