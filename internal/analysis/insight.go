package analysis

import (
	"context"

	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/models"
)

const insightAction = "Error generating insights"

// Insight extracts key insights and business metrics.
type Insight struct {
	base
}

// NewInsight creates the insight strategy.
func NewInsight(gen llm.Generator, opts ...Option) *Insight {
	return &Insight{base: newBase("insight", gen, opts)}
}

// Run generates insights from docs.
func (s *Insight) Run(ctx context.Context, docs []*models.Chunk) (*models.Result, error) {
	if len(docs) == 0 {
		return nil, noDocuments()
	}
	text, err := s.generate(ctx, insightPrompt, promptData{Context: DocumentContext(docs)}, insightAction)
	if err != nil {
		return nil, err
	}
	res := result(docs)
	res.Insights = text
	return res, nil
}

// RunForCompany generates insights over one company's financial performance chunks.
func (s *Insight) RunForCompany(ctx context.Context, company string, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.CompanyFilter(company), scopedK, insightAction, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, noDocumentsForCompany(company)
	}
	return s.Run(ctx, docs)
}

// RunForPeriod generates insights over one reporting period.
func (s *Insight) RunForPeriod(ctx context.Context, p models.Period, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.PeriodFilter(p), scopedK, insightAction, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, noDocumentsForPeriod(p)
	}
	return s.Run(ctx, docs)
}

// RunGlobal generates insights over the whole index.
func (s *Insight) RunGlobal(ctx context.Context, r Retriever) (*models.Result, error) {
	docs, err := s.retrieve(ctx, r, models.Filter{}, scopedK, insightAction, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, docs)
}
