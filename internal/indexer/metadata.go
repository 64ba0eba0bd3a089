package indexer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/kessan/internal/models"
)

type companyAliases struct {
	name    string
	aliases []string
}

// companyTable is matched in order; the first company with an alias contained
// in the lowercased filename wins.
var companyTable = []companyAliases{
	{"Apple", []string{"apple", "aapl"}},
	{"Google", []string{"google", "alphabet", "googl"}},
	{"Microsoft", []string{"microsoft", "msft"}},
	{"Amazon", []string{"amazon", "amzn"}},
	{"Tesla", []string{"tesla", "tsla"}},
	{"Netflix", []string{"netflix", "nflx"}},
	{"Meta", []string{"meta", "facebook", "fb"}},
	{"Nvidia", []string{"nvidia", "nvda"}},
}

// sectionHeadings are matched in order against the lowercased page text.
var sectionHeadings = []string{
	"executive summary",
	"management discussion",
	"financial highlights",
	"risk factors",
	"business overview",
	"results of operations",
	"liquidity and capital resources",
	"market risk",
	"legal proceedings",
}

var (
	yearPattern    = regexp.MustCompile(`20\d{2}`)
	quarterPattern = regexp.MustCompile(`(?i)Q[1-4]`)
)

// FileInfo is the metadata derived from a source filename.
type FileInfo struct {
	Company string
	Year    string
	Quarter string
}

// ParseFilename derives company, year and quarter from filename. Fields that
// cannot be derived are models.Unknown.
func ParseFilename(filename string) FileInfo {
	info := FileInfo{Company: models.Unknown, Year: models.Unknown, Quarter: models.Unknown}
	lower := strings.ToLower(filename)
	for _, c := range companyTable {
		if containsAny(lower, c.aliases) {
			info.Company = c.name
			break
		}
	}
	if m := yearPattern.FindString(filename); m != "" {
		info.Year = m
	}
	if m := quarterPattern.FindString(filename); m != "" {
		info.Quarter = strings.ToUpper(m)
	}
	return info
}

// Companies returns the names in the alias table.
func Companies() []string {
	out := make([]string, len(companyTable))
	for i, c := range companyTable {
		out[i] = c.name
	}
	return out
}

// DetectSection returns the first known section heading found in text, with
// spaces replaced by underscores, or "page_<pageNumber>".
func DetectSection(text string, pageNumber int) string {
	lower := strings.ToLower(text)
	for _, heading := range sectionHeadings {
		if strings.Contains(lower, heading) {
			return strings.ReplaceAll(heading, " ", "_")
		}
	}
	return "page_" + strconv.Itoa(pageNumber)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
