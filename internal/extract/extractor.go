// Package extract provides per-page text extraction from report files.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kessan/internal/models"
	"go.uber.org/zap"
)

// DefaultMaxFileSize is the largest source file accepted for extraction.
const DefaultMaxFileSize = 50 * 1024 * 1024

// SupportedExtensions lists every extension the extractor can read.
var SupportedExtensions = []string{".pdf", ".docx", ".odt", ".rtf", ".txt", ".md"}

// Extractor extracts page text from document files.
type Extractor struct {
	maxFileSize int64
	extensions  map[string]bool
	logger      *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for skipped-page warnings.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = l
	}
}

// WithMaxFileSize sets the size limit in bytes. Values <= 0 keep the default.
func WithMaxFileSize(n int64) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

// WithExtensions restricts the accepted extensions (with leading dot).
// Extensions the extractor cannot read are ignored.
func WithExtensions(exts []string) ExtractorOption {
	return func(e *Extractor) {
		if len(exts) == 0 {
			return
		}
		e.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = normalizeExt(ext)
			if isSupported(ext) {
				e.extensions[ext] = true
			}
		}
	}
}

// NewExtractor returns an Extractor accepting only .pdf unless WithExtensions says otherwise.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		maxFileSize: DefaultMaxFileSize,
		extensions:  map[string]bool{".pdf": true},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Accepts reports whether path has an enabled extension.
func (e *Extractor) Accepts(path string) bool {
	return e.extensions[normalizeExt(filepath.Ext(path))]
}

// ExtractPages reads the file at path and returns its pages in order.
// A missing file is models.ErrNotFound; an oversized file or a disabled extension
// is models.ErrInvalidInput. Pages that fail to decode are skipped.
func (e *Extractor) ExtractPages(path string) ([]models.Page, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.WrapError(models.ErrNotFound, err, "File not found: %s", path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, models.Errorf(models.ErrInvalidInput, "Not a file: %s", path)
	}
	ext := normalizeExt(filepath.Ext(path))
	if !e.extensions[ext] {
		return nil, models.Errorf(models.ErrInvalidInput, "Unsupported file type: %s", filepath.Base(path))
	}
	if info.Size() > e.maxFileSize {
		return nil, models.Errorf(models.ErrInvalidInput, "File too large: %s (%d bytes, limit %d)",
			filepath.Base(path), info.Size(), e.maxFileSize)
	}

	switch ext {
	case ".odt", ".rtf":
		return extractOffice(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts pages from in-memory content of the given extension.
// ext should include the leading dot (e.g. ".pdf"). Formats read from disk only
// (.odt, .rtf) are rejected.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]models.Page, error) {
	switch normalizeExt(ext) {
	case ".pdf":
		return extractPDF(content, e.logger)
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return singlePage(text), nil
	case ".txt", ".md":
		return extractPlain(content), nil
	default:
		return nil, models.Errorf(models.ErrInvalidInput, "Unsupported file type: %s", ext)
	}
}

func singlePage(text string) []models.Page {
	return []models.Page{{Number: 1, Text: text}}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func isSupported(ext string) bool {
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}
