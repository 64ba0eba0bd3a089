package extract

import (
	"bytes"
	"fmt"

	"github.com/hyperjump/kessan/internal/models"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// extractPDF returns one Page per PDF page, numbered from 1. Pages whose content
// cannot be decoded are skipped with a warning; the remaining pages are kept.
func extractPDF(content []byte, logger *zap.Logger) ([]models.Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, err := pageText(r, i)
		if err != nil {
			if logger != nil {
				logger.Warn("Skipping undecodable page", zap.Int("page", i), zap.Error(err))
			}
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, nil
}

// pageText decodes a single page. The pdf reader panics on some malformed
// content streams, so panics are turned into errors.
func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decode page %d: %v", n, rec)
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d: %w", n, err)
	}
	return text, nil
}
