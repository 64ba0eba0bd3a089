package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/config"
	"github.com/hyperjump/kessan/internal/export"
	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/pkg/utils"
)

// handleAnalyze always answers with an envelope; analysis errors are carried
// in the envelope rather than the status code.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var params models.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("analyze request",
		zap.String("type", params.AnalysisType),
		zap.String("company", params.Company),
		zap.String("question", utils.Truncate(params.Question, 80)))
	env := s.analyzer.RunAnalysis(r.Context(), params.AnalysisType, params)
	s.respondJSON(w, http.StatusOK, env)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.analyzer.Companies(r.Context())
	if err != nil {
		s.respondErr(w, "list companies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"companies": companies})
}

func (s *Server) handleQuarters(w http.ResponseWriter, r *http.Request) {
	quarters, err := s.analyzer.Quarters(r.Context())
	if err != nil {
		s.respondErr(w, "list quarters", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"quarters": quarters})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analyzer.Stats(r.Context())
	if err != nil {
		s.respondErr(w, "stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := models.NewPeriod(q.Get("year"), q.Get("quarter"))
	questions := s.analyzer.SuggestQuestions(q.Get("company"), period)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

type ingestRequest struct {
	Paths []string `json:"paths"`
	Force bool     `json:"force"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths is required")
		return
	}
	s.logger.Debug("ingest request", zap.Strings("paths", req.Paths), zap.Bool("force", req.Force))
	report, err := s.ingester.IngestPaths(r.Context(), req.Paths, req.Force)
	if err != nil {
		if report != nil {
			s.logger.Warn("ingest interrupted",
				zap.Int("files_processed", len(report.Files)), zap.Int("chunks_stored", report.Chunks), zap.Error(err))
		}
		s.respondErr(w, "ingest", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

type exportRequest struct {
	Format   string           `json:"format"`
	Envelope *models.Envelope `json:"envelope"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		s.respondErr(w, "export", err)
		return
	}
	path, err := s.exporter.Export(req.Envelope, format)
	if err != nil {
		s.respondErr(w, "export", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a classified error to a status code and its display message.
func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrEmptyResult):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrBackendFailure):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	}
	msg := models.DisplayMessage(err)
	if msg == "" {
		msg = err.Error()
	}
	s.respondError(w, status, msg)
}
