package extract

import (
	"fmt"

	"github.com/hyperjump/kessan/internal/models"
	"github.com/lu4p/cat"
)

// extractOffice reads .odt and .rtf files as a single page.
func extractOffice(path string) ([]models.Page, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return singlePage(text), nil
}
