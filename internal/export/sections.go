package export

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kessan/internal/models"
)

const (
	generalSection = "General"
	maxHeaderLen   = 80
)

// sectionKeywords mark header lines in generated text, per kind.
var sectionKeywords = map[models.Kind][]string{
	models.KindInsight: {
		"executive summary", "key financial metrics", "business highlights",
		"strategic initiatives", "risk factors", "outlook",
	},
	models.KindCompare: {
		"executive summary", "key metrics comparison", "metrics comparison", "performance analysis",
		"strategic comparison", "strategic differences", "market position", "risk and outlook",
		"comparative outlook", "investment implications",
	},
	models.KindRisk: {
		"executive summary", "risk categories", "risk assessment", "severity assessment",
		"risk mitigation", "regulatory and compliance", "forward-looking risk", "emerging risks",
		"risk metrics", "investment implications",
	},
}

type section struct {
	name    string
	content string
}

// parseSections splits text into named sections. Lines before the first
// header belong to "General"; headers with no content are dropped.
func parseSections(kind models.Kind, text string) []section {
	keywords := sectionKeywords[kind]
	var out []section
	current := generalSection
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			out = append(out, section{name: current, content: strings.Join(lines, "\n")})
		}
		lines = nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isHeader(line, keywords) {
			flush()
			current = line
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return out
}

func isHeader(line string, keywords []string) bool {
	if utf8.RuneCountInString(line) > maxHeaderLen {
		return false
	}
	lower := strings.ToLower(line)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
