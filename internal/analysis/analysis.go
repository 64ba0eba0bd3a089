// Package analysis implements the insight, compare, risk and question-answering
// strategies. Each strategy turns retrieved chunks into one prompt, calls the
// generator once and packages the reply with provenance.
package analysis

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/models"
)

// DefaultTemperature keeps generation near-deterministic.
const DefaultTemperature = 0.1

// Retrieval defaults.
const (
	topicFinancialPerformance  = "financial performance"
	topicRiskFactors           = "risk factors"
	topicRiskDisclosure        = "risk disclosure"
	topicRiskFactorsDisclosure = "risk factors disclosure"

	scopedK  = 10
	compareK = 8
	qaK      = 8
	generalK = 10
)

// Retriever finds chunks relevant to a query within a metadata filter.
type Retriever interface {
	Search(ctx context.Context, query string, k int, filter models.Filter) ([]*models.Chunk, error)
}

// QuestionRetriever is a Retriever that can also search with a free-text user
// question, correcting misspelled terms on the keyword side.
type QuestionRetriever interface {
	Retriever
	SearchQuestion(ctx context.Context, question string, k int, filter models.Filter) ([]*models.Chunk, error)
}

// questionSearch sends Search calls to SearchQuestion.
type questionSearch struct {
	QuestionRetriever
}

func (q questionSearch) Search(ctx context.Context, query string, k int, filter models.Filter) ([]*models.Chunk, error) {
	return q.SearchQuestion(ctx, query, k, filter)
}

// forQuestions returns r adapted for question retrieval when it supports it.
func forQuestions(r Retriever) Retriever {
	if qr, ok := r.(QuestionRetriever); ok {
		return questionSearch{qr}
	}
	return r
}

// Option configures a strategy.
type Option func(*base)

// WithTemperature sets the generation temperature.
func WithTemperature(t float64) Option {
	return func(b *base) {
		if t >= 0 {
			b.temperature = t
		}
	}
}

// WithLogger sets a logger for retrieval and generation events.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) { b.logger = l }
}

// base holds what every strategy shares.
type base struct {
	name        string
	generator   llm.Generator
	temperature float64
	logger      *zap.Logger
}

func newBase(name string, gen llm.Generator, opts []Option) base {
	b := base{name: name, generator: gen, temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// generate fills tmpl with data and makes a single generation call. Failures
// are BackendFailure errors whose message starts with action.
func (b *base) generate(ctx context.Context, tmpl *template.Template, data any, action string) (string, error) {
	var prompt bytes.Buffer
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", models.WrapError(models.ErrBackendFailure, err, "%s", action)
	}
	text, err := b.generator.Generate(ctx, prompt.String(), b.temperature)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("generation failed", zap.String("strategy", b.name), zap.Error(err))
		}
		return "", models.WrapError(models.ErrBackendFailure, err, "%s", action)
	}
	if strings.TrimSpace(text) == "" {
		return "", models.Errorf(models.ErrBackendFailure, "%s: empty response from generation backend", action)
	}
	return text, nil
}

// retrieve runs each query in turn within filter and returns the first
// non-empty result. Retrieval failures are BackendFailure errors prefixed with action.
func (b *base) retrieve(ctx context.Context, r Retriever, filter models.Filter, k int, action string, queries ...string) ([]*models.Chunk, error) {
	for _, q := range queries {
		docs, err := r.Search(ctx, q, k, filter)
		if err != nil {
			return nil, models.WrapError(models.ErrBackendFailure, err, "%s", action)
		}
		if b.logger != nil {
			b.logger.Debug("retrieved documents",
				zap.String("strategy", b.name), zap.String("query", q), zap.Int("count", len(docs)))
		}
		if len(docs) > 0 {
			return docs, nil
		}
	}
	return nil, nil
}

func noDocuments() error {
	return models.Errorf(models.ErrInvalidInput, "No documents provided")
}

func noDocumentsForCompany(company string) error {
	return models.Errorf(models.ErrEmptyResult, "No documents found for company: %s", company)
}

func noDocumentsForPeriod(p models.Period) error {
	return models.Errorf(models.ErrEmptyResult, "No documents found for %s", p)
}
