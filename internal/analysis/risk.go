package analysis

import (
	"context"
	"strings"

	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/models"
)

const riskAction = "Error analyzing risks"

// riskVocabulary is scanned in order by IdentifyRiskKeywords.
var riskVocabulary = []string{
	"risk", "uncertainty", "volatility", "exposure", "vulnerability",
	"threat", "challenge", "adverse", "negative", "decline", "loss",
	"litigation", "legal", "regulatory", "compliance", "penalty",
	"cybersecurity", "data breach", "privacy", "security",
	"supply chain", "disruption", "shortage", "inflation",
	"interest rate", "currency", "exchange rate", "hedge",
	"competition", "market share", "pricing pressure",
	"technology", "innovation", "obsolescence",
}

// Risk extracts risk disclosures and flagged language.
type Risk struct {
	base
}

// NewRisk creates the risk strategy.
func NewRisk(gen llm.Generator, opts ...Option) *Risk {
	return &Risk{base: newBase("risk", gen, opts)}
}

// Run analyzes the risks in docs. The payload carries the risk vocabulary
// found across the supplied text.
func (s *Risk) Run(ctx context.Context, docs []*models.Chunk) (*models.Result, error) {
	if len(docs) == 0 {
		return nil, noDocuments()
	}
	text, err := s.generate(ctx, riskPrompt, promptData{Context: DocumentContext(docs)}, riskAction)
	if err != nil {
		return nil, err
	}
	res := result(docs)
	res.RiskAnalysis = text
	res.RiskKeywords = IdentifyRiskKeywords(joinText(docs))
	return res, nil
}

// RunForCompany analyzes one company's risk disclosures, falling back once to
// its financial performance chunks.
func (s *Risk) RunForCompany(ctx context.Context, company string, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.CompanyFilter(company), scopedK, riskAction,
		topicRiskFactorsDisclosure, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, noDocumentsForCompany(company)
	}
	return s.Run(ctx, docs)
}

// RunForPeriod analyzes one period's risk factors, falling back once to its
// financial performance chunks.
func (s *Risk) RunForPeriod(ctx context.Context, p models.Period, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.PeriodFilter(p), scopedK, riskAction,
		topicRiskFactors, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, noDocumentsForPeriod(p)
	}
	return s.Run(ctx, docs)
}

// RunForSection analyzes chunks carrying one section label, e.g. "risk_factors".
func (s *Risk) RunForSection(ctx context.Context, section string, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.SectionFilter(section), scopedK, riskAction, topicRiskDisclosure)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, models.Errorf(models.ErrEmptyResult, "No documents found for section: %s", section)
	}
	return s.Run(ctx, docs)
}

// RunGlobal analyzes risk factors across the whole index.
func (s *Risk) RunGlobal(ctx context.Context, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.Filter{}, scopedK, riskAction, topicRiskFactors)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, docs)
}

// IdentifyRiskKeywords returns the risk vocabulary terms contained in text,
// case-insensitively, in vocabulary order.
func IdentifyRiskKeywords(text string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0)
	for _, kw := range riskVocabulary {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func joinText(docs []*models.Chunk) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
