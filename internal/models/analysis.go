package models

import (
	"fmt"
	"strings"
)

// Kind is the closed set of analysis kinds.
type Kind uint8

const (
	KindInsight Kind = iota
	KindCompare
	KindRisk
	KindQA
)

var kindNames = [...]string{
	KindInsight: "insight",
	KindCompare: "compare",
	KindRisk:    "risk",
	KindQA:      "qa",
}

// Kinds lists every analysis kind in display order.
func Kinds() []Kind {
	return []Kind{KindInsight, KindCompare, KindRisk, KindQA}
}

// ParseKind maps a name to its Kind. ok is false for unrecognized names.
func ParseKind(s string) (k Kind, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insight":
		return KindInsight, true
	case "compare":
		return KindCompare, true
	case "risk":
		return KindRisk, true
	case "qa":
		return KindQA, true
	default:
		return KindQA, false
	}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Title returns the capitalized kind name, e.g. "Insight".
func (k Kind) Title() string {
	if k == KindQA {
		return "QA"
	}
	s := k.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode as KindQA.
func (k *Kind) UnmarshalText(b []byte) error {
	*k, _ = ParseKind(string(b))
	return nil
}

// Request is one analysis request. The variants are InsightRequest,
// CompareRequest, RiskRequest and QARequest.
type Request interface {
	Kind() Kind
	isRequest()
}

// InsightRequest asks for key insights, scoped by company or period, or global when both are unset.
type InsightRequest struct {
	Company string
	Period  *Period
}

// CompareRequest compares two companies or two periods.
type CompareRequest struct {
	Company1 string
	Company2 string
	Period1  *Period
	Period2  *Period
}

// RiskRequest asks for a risk analysis scoped by company, period or section.
type RiskRequest struct {
	Company string
	Period  *Period
	Section string
}

// QARequest asks a question, optionally scoped by company or period.
type QARequest struct {
	Question string
	Company  string
	Period   *Period
}

func (InsightRequest) Kind() Kind { return KindInsight }
func (CompareRequest) Kind() Kind { return KindCompare }
func (RiskRequest) Kind() Kind    { return KindRisk }
func (QARequest) Kind() Kind      { return KindQA }

func (InsightRequest) isRequest() {}
func (CompareRequest) isRequest() {}
func (RiskRequest) isRequest()    {}
func (QARequest) isRequest()      {}

// CompaniesSet reports whether both companies are present.
func (r CompareRequest) CompaniesSet() bool {
	return strings.TrimSpace(r.Company1) != "" && strings.TrimSpace(r.Company2) != ""
}

// PeriodsSet reports whether both periods are present.
func (r CompareRequest) PeriodsSet() bool {
	return r.Period1 != nil && r.Period2 != nil
}

// Params is the flat wire form of a request, as sent by the CLI and HTTP API.
type Params struct {
	AnalysisType string `json:"analysis_type"`
	Company      string `json:"company,omitempty"`
	Company1     string `json:"company1,omitempty"`
	Company2     string `json:"company2,omitempty"`
	Year         string `json:"year,omitempty"`
	Quarter      string `json:"quarter,omitempty"`
	Year1        string `json:"year1,omitempty"`
	Quarter1     string `json:"quarter1,omitempty"`
	Year2        string `json:"year2,omitempty"`
	Quarter2     string `json:"quarter2,omitempty"`
	Section      string `json:"section,omitempty"`
	Question     string `json:"question,omitempty"`
}

// Request builds the request variant for kind, keeping only the fields that kind accepts.
func (p Params) Request(kind Kind) Request {
	switch kind {
	case KindInsight:
		return InsightRequest{Company: strings.TrimSpace(p.Company), Period: NewPeriod(p.Year, p.Quarter)}
	case KindCompare:
		return CompareRequest{
			Company1: strings.TrimSpace(p.Company1),
			Company2: strings.TrimSpace(p.Company2),
			Period1:  NewPeriod(p.Year1, p.Quarter1),
			Period2:  NewPeriod(p.Year2, p.Quarter2),
		}
	case KindRisk:
		return RiskRequest{
			Company: strings.TrimSpace(p.Company),
			Period:  NewPeriod(p.Year, p.Quarter),
			Section: strings.TrimSpace(p.Section),
		}
	default:
		return QARequest{Question: p.Question, Company: strings.TrimSpace(p.Company), Period: NewPeriod(p.Year, p.Quarter)}
	}
}

// NewPeriod returns a period when both parts are non-blank, otherwise nil.
// The quarter is uppercased so "q1" and "Q1" are the same period.
func NewPeriod(year, quarter string) *Period {
	year, quarter = strings.TrimSpace(year), strings.TrimSpace(quarter)
	if year == "" || quarter == "" {
		return nil
	}
	return &Period{Year: year, Quarter: strings.ToUpper(quarter)}
}

// Result is a strategy payload. Exactly one of the generated-text fields is set.
type Result struct {
	Insights        string   `json:"insights,omitempty"`
	Comparison      string   `json:"comparison,omitempty"`
	RiskAnalysis    string   `json:"risk_analysis,omitempty"`
	Answer          string   `json:"answer,omitempty"`
	Question        string   `json:"question,omitempty"`
	RiskKeywords    []string `json:"risk_keywords,omitempty"`
	SourceDocuments int      `json:"source_documents"`
	Companies       []string `json:"companies"`
	Quarters        []string `json:"quarters"`
}

// Text returns the generated text regardless of which kind produced it.
func (r *Result) Text() string {
	switch {
	case r.Insights != "":
		return r.Insights
	case r.Comparison != "":
		return r.Comparison
	case r.RiskAnalysis != "":
		return r.RiskAnalysis
	default:
		return r.Answer
	}
}

// Status is the envelope outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope is the uniform wrapper returned for every analysis request.
type Envelope struct {
	Status       Status  `json:"status"`
	AnalysisType Kind    `json:"analysis_type"`
	Result       *Result `json:"result,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// Success wraps a strategy payload.
func Success(kind Kind, result *Result) *Envelope {
	return &Envelope{Status: StatusSuccess, AnalysisType: kind, Result: result}
}

// Failure wraps an error message.
func Failure(kind Kind, message string) *Envelope {
	return &Envelope{Status: StatusError, AnalysisType: kind, Message: message}
}

// OK reports whether the envelope carries a result.
func (e *Envelope) OK() bool {
	return e.Status == StatusSuccess && e.Result != nil
}
