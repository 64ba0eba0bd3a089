// Package export writes analysis envelopes to Excel workbooks and PDF reports.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/models"
)

const (
	filePrefix      = "kessan"
	timestampLayout = "2006-01-02 15:04:05"
	fileTimeLayout  = "20060102_150405"
)

// Format is an export file format.
type Format string

const (
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excel", "xlsx":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", models.Errorf(models.ErrInvalidInput, "Unsupported export format: %s", s)
	}
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	if f == FormatPDF {
		return ".pdf"
	}
	return ".xlsx"
}

// Exporter writes export files into one directory.
type Exporter struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithClock overrides the clock used for file names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an exporter writing into dir.
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Export writes env in format and returns the file path. Only successful
// envelopes can be exported.
func (e *Exporter) Export(env *models.Envelope, format Format) (string, error) {
	if env == nil || !env.OK() {
		return "", models.Errorf(models.ErrInvalidInput, "No analysis result to export")
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	now := e.now()
	path := filepath.Join(e.dir, fileName(env.AnalysisType, now, format))

	var err error
	switch format {
	case FormatExcel:
		err = writeExcel(path, env, now)
	case FormatPDF:
		err = writePDF(path, env, now)
	default:
		return "", models.Errorf(models.ErrInvalidInput, "Unsupported export format: %s", format)
	}
	if err != nil {
		return "", err
	}
	if e.logger != nil {
		e.logger.Info("exported analysis", zap.String("path", path), zap.String("format", string(format)))
	}
	return path, nil
}

func fileName(kind models.Kind, t time.Time, format Format) string {
	return fmt.Sprintf("%s_%s_%s%s", filePrefix, kind, t.Format(fileTimeLayout), format.Ext())
}

type field struct {
	name  string
	value string
}

// metadataFields are the envelope-level facts written by both formats.
func metadataFields(env *models.Envelope, now time.Time) []field {
	fields := []field{
		{"Analysis Type", env.AnalysisType.Title()},
		{"Status", string(env.Status)},
		{"Timestamp", now.Format(timestampLayout)},
	}
	return append(fields, sourceFields(env.Result)...)
}

func sourceFields(res *models.Result) []field {
	fields := []field{
		{"Source Documents", strconv.Itoa(res.SourceDocuments)},
		{"Companies", strings.Join(res.Companies, ", ")},
		{"Quarters", strings.Join(res.Quarters, ", ")},
	}
	if len(res.RiskKeywords) > 0 {
		fields = append(fields, field{"Risk Keywords", strings.Join(res.RiskKeywords, ", ")})
	}
	return fields
}
