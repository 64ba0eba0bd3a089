package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/models"
)

const qaAction = "Error answering question"

// QA answers questions from retrieved report excerpts.
type QA struct {
	base
}

// NewQA creates the question-answering strategy.
func NewQA(gen llm.Generator, opts ...Option) *QA {
	return &QA{base: newBase("qa", gen, opts)}
}

func noQuestion() error {
	return models.Errorf(models.ErrInvalidInput, "No question provided")
}

// Run answers question from docs.
func (s *QA) Run(ctx context.Context, question string, docs []*models.Chunk) (*models.Result, error) {
	if len(docs) == 0 {
		return nil, noDocuments()
	}
	if strings.TrimSpace(question) == "" {
		return nil, noQuestion()
	}
	text, err := s.generate(ctx, qaPrompt, promptData{Question: question, Context: SourceContext(docs)}, qaAction)
	if err != nil {
		return nil, err
	}
	res := result(docs)
	res.Answer = text
	res.Question = question
	return res, nil
}

// RunForCompany answers question from up to 8 of one company's chunks.
func (s *QA) RunForCompany(ctx context.Context, question, company string, r Retriever) (*models.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, noQuestion()
	}
	docs, err := s.retrieve(ctx, forQuestions(r), models.CompanyFilter(company), qaK, qaAction, question)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, noDocumentsForCompany(company)
	}
	return s.Run(ctx, question, docs)
}

// RunForPeriod answers question from up to 8 chunks of one period.
func (s *QA) RunForPeriod(ctx context.Context, question string, p models.Period, r Retriever) (*models.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, noQuestion()
	}
	docs, err := s.retrieve(ctx, forQuestions(r), models.PeriodFilter(p), qaK, qaAction, question)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, noDocumentsForPeriod(p)
	}
	return s.Run(ctx, question, docs)
}

// RunGlobal answers question from the 10 most relevant chunks in the index.
func (s *QA) RunGlobal(ctx context.Context, question string, r Retriever) (*models.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, noQuestion()
	}
	docs, err := s.retrieve(ctx, forQuestions(r), models.Filter{}, generalK, qaAction, question)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, models.Errorf(models.ErrEmptyResult, "No relevant documents found")
	}
	return s.Run(ctx, question, docs)
}

// SuggestQuestions returns starter questions for a company, a period, both or neither.
func SuggestQuestions(company string, period *models.Period) []string {
	var questions []string
	if company = strings.TrimSpace(company); company != "" {
		questions = append(questions,
			fmt.Sprintf("What was %s's revenue in the most recent quarter?", company),
			fmt.Sprintf("What were %s's key financial metrics?", company),
			fmt.Sprintf("What strategic initiatives did %s mention?", company),
			fmt.Sprintf("What were %s's main challenges or risks?", company),
			fmt.Sprintf("How did %s perform compared to previous quarters?", company),
		)
	} else {
		questions = append(questions,
			"What were the key financial trends across companies?",
			"Which companies showed the strongest growth?",
			"What were the common risk factors mentioned?",
			"What were the main strategic themes across companies?",
			"How did different sectors perform?",
		)
	}
	if period != nil {
		questions = append(questions,
			fmt.Sprintf("What were the key developments in %s?", period),
			fmt.Sprintf("Which companies performed best in %s?", period),
			fmt.Sprintf("What were the main challenges in %s?", period),
		)
	}
	return questions
}
