// Package models defines core data structures for chunks, analysis requests and results.
package models

import (
	"strings"
	"time"
)

// Unknown is the sentinel for metadata that could not be derived.
const Unknown = "Unknown"

// Page is one page of raw text extracted from a source file. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is an immutable unit of retrievable text with its provenance metadata.
type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Company    string `json:"company"`
	Year       string `json:"year"`
	Quarter    string `json:"quarter"`
	Section    string `json:"section"`
	SourceFile string `json:"source_file"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
}

// Period returns the chunk's reporting period.
func (c *Chunk) Period() Period {
	return Period{Year: c.Year, Quarter: c.Quarter}
}

// Period is a reporting period such as 2023 Q1.
type Period struct {
	Year    string `json:"year"`
	Quarter string `json:"quarter"`
}

// String renders the period as "<year> <quarter>".
func (p Period) String() string {
	return p.Year + " " + p.Quarter
}

// Known reports whether both year and quarter are set and not Unknown.
func (p Period) Known() bool {
	return known(p.Year) && known(p.Quarter)
}

// Less orders periods by year, then quarter.
func (p Period) Less(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Quarter < o.Quarter
}

// Filter narrows retrieval by metadata. Empty or Unknown fields are unconstrained.
type Filter struct {
	Company string
	Year    string
	Quarter string
	Section string
}

// CompanyFilter scopes retrieval to one company.
func CompanyFilter(company string) Filter {
	return Filter{Company: company}
}

// PeriodFilter scopes retrieval to one reporting period.
func PeriodFilter(p Period) Filter {
	return Filter{Year: p.Year, Quarter: p.Quarter}
}

// SectionFilter scopes retrieval to one section label.
func SectionFilter(section string) Filter {
	return Filter{Section: section}
}

// Normalize returns a copy with blank and Unknown fields cleared and the quarter uppercased.
func (f Filter) Normalize() Filter {
	out := Filter{}
	if known(f.Company) {
		out.Company = strings.TrimSpace(f.Company)
	}
	if known(f.Year) {
		out.Year = strings.TrimSpace(f.Year)
	}
	if known(f.Quarter) {
		out.Quarter = strings.ToUpper(strings.TrimSpace(f.Quarter))
	}
	if known(f.Section) {
		out.Section = strings.TrimSpace(f.Section)
	}
	return out
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return f.Normalize() == Filter{}
}

// Matches reports whether c satisfies every constrained field.
// Company matching is case-insensitive.
func (f Filter) Matches(c *Chunk) bool {
	n := f.Normalize()
	if n.Company != "" && !strings.EqualFold(n.Company, c.Company) {
		return false
	}
	if n.Year != "" && n.Year != c.Year {
		return false
	}
	if n.Quarter != "" && n.Quarter != c.Quarter {
		return false
	}
	if n.Section != "" && n.Section != c.Section {
		return false
	}
	return true
}

func known(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != Unknown
}

// Source records an ingested file so unchanged files are not chunked twice.
type Source struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    int64     `json:"mod_time"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Stats is a read-only snapshot of the index contents. DiskBreakdown holds the
// size of each top-level entry of the index directory.
type Stats struct {
	State          string           `json:"state"`
	TotalDocuments int64            `json:"total_documents"`
	Companies      []string         `json:"companies"`
	Quarters       []Period         `json:"quarters"`
	Sources        int              `json:"sources"`
	DiskBytes      int64            `json:"disk_bytes"`
	DiskBreakdown  map[string]int64 `json:"disk_breakdown,omitempty"`
}
