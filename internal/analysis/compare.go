package analysis

import (
	"context"

	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/models"
)

const (
	compareCompaniesAction = "Error comparing companies"
	compareQuartersAction  = "Error comparing quarters"
)

// Compare contrasts two companies or two reporting periods.
type Compare struct {
	base
}

// NewCompare creates the compare strategy.
func NewCompare(gen llm.Generator, opts ...Option) *Compare {
	return &Compare{base: newBase("compare", gen, opts)}
}

// Run compares the supplied docs, side one first.
func (s *Compare) Run(ctx context.Context, docs []*models.Chunk) (*models.Result, error) {
	return s.run(ctx, docs, compareCompaniesAction)
}

func (s *Compare) run(ctx context.Context, docs []*models.Chunk, action string) (*models.Result, error) {
	if len(docs) == 0 {
		return nil, noDocuments()
	}
	text, err := s.generate(ctx, comparePrompt, promptData{Context: DocumentContext(docs)}, action)
	if err != nil {
		return nil, err
	}
	res := result(docs)
	res.Comparison = text
	return res, nil
}

// RunRequest dispatches on which pair req carries. Companies take precedence
// over periods; a request with neither pair is InvalidInput.
func (s *Compare) RunRequest(ctx context.Context, req models.CompareRequest, r Retriever) (*models.Result, error) {
	switch {
	case req.CompaniesSet():
		return s.CompareCompanies(ctx, req.Company1, req.Company2, r)
	case req.PeriodsSet():
		return s.ComparePeriods(ctx, *req.Period1, *req.Period2, r)
	default:
		return nil, models.Errorf(models.ErrInvalidInput, "Insufficient parameters for comparison")
	}
}

// CompareCompanies compares up to 8 financial performance chunks from each company.
func (s *Compare) CompareCompanies(ctx context.Context, company1, company2 string, r Retriever) (*models.Result, error) {
	return s.compareSides(ctx, r, models.CompanyFilter(company1), models.CompanyFilter(company2), compareCompaniesAction)
}

// ComparePeriods compares up to 8 financial performance chunks from each period.
func (s *Compare) ComparePeriods(ctx context.Context, p1, p2 models.Period, r Retriever) (*models.Result, error) {
	return s.compareSides(ctx, r, models.PeriodFilter(p1), models.PeriodFilter(p2), compareQuartersAction)
}

func (s *Compare) compareSides(ctx context.Context, r Retriever, side1, side2 models.Filter, action string) (*models.Result, error) {
	docs1, err := s.retrieve(ctx, r, side1, compareK, action, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	docs2, err := s.retrieve(ctx, r, side2, compareK, action, topicFinancialPerformance)
	if err != nil {
		return nil, err
	}
	if len(docs1) == 0 && len(docs2) == 0 {
		return nil, models.Errorf(models.ErrEmptyResult, "No documents found for comparison")
	}
	docs := make([]*models.Chunk, 0, len(docs1)+len(docs2))
	docs = append(append(docs, docs1...), docs2...)
	return s.run(ctx, docs, action)
}
