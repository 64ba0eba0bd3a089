// Package router dispatches analysis requests to strategies and wraps every
// outcome in an envelope.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/analysis"
	"github.com/hyperjump/kessan/internal/llm"
	"github.com/hyperjump/kessan/internal/models"
)

// Index is what the router needs from the chunk index.
type Index interface {
	analysis.Retriever
	Companies(ctx context.Context) ([]string, error)
	Quarters(ctx context.Context) ([]models.Period, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// Router owns one instance of each strategy.
type Router struct {
	index   Index
	insight *analysis.Insight
	compare *analysis.Compare
	risk    *analysis.Risk
	qa      *analysis.QA
	logger  *zap.Logger
}

// Option configures a Router.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	strategies []analysis.Option
}

// WithLogger sets the logger for the router and its strategies.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
		o.strategies = append(o.strategies, analysis.WithLogger(l))
	}
}

// WithTemperature sets the generation temperature for every strategy.
func WithTemperature(t float64) Option {
	return func(o *options) {
		o.strategies = append(o.strategies, analysis.WithTemperature(t))
	}
}

// New creates a router over index, generating with gen.
func New(index Index, gen llm.Generator, opts ...Option) *Router {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Router{
		index:   index,
		insight: analysis.NewInsight(gen, o.strategies...),
		compare: analysis.NewCompare(gen, o.strategies...),
		risk:    analysis.NewRisk(gen, o.strategies...),
		qa:      analysis.NewQA(gen, o.strategies...),
		logger:  o.logger,
	}
}

// RunAnalysis parses kind and runs the request built from params. Unknown
// kinds run as QA, which rejects a missing question.
func (r *Router) RunAnalysis(ctx context.Context, kind string, params models.Params) *models.Envelope {
	k, ok := models.ParseKind(kind)
	if !ok && r.logger != nil {
		r.logger.Debug("unknown analysis type, using qa", zap.String("type", kind))
	}
	return r.Run(ctx, params.Request(k))
}

// Run dispatches req to its strategy. It always returns an envelope; strategy
// errors and panics become error envelopes.
func (r *Router) Run(ctx context.Context, req models.Request) (env *models.Envelope) {
	if req == nil {
		return models.Failure(models.KindQA, "No analysis request provided")
	}
	kind := req.Kind()
	defer func() {
		if p := recover(); p != nil {
			if r.logger != nil {
				r.logger.Error("analysis panicked", zap.Stringer("kind", kind), zap.Any("panic", p))
			}
			env = models.Failure(kind, fmt.Sprintf("Error in %s analysis: %v", kind, p))
		}
	}()

	res, err := r.dispatch(ctx, req)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("analysis failed", zap.Stringer("kind", kind), zap.Error(err))
		}
		return models.Failure(kind, errorMessage(kind, err))
	}
	return models.Success(kind, res)
}

func (r *Router) dispatch(ctx context.Context, req models.Request) (*models.Result, error) {
	switch req := req.(type) {
	case models.InsightRequest:
		switch {
		case req.Company != "":
			return r.insight.RunForCompany(ctx, req.Company, r.index)
		case req.Period != nil:
			return r.insight.RunForPeriod(ctx, *req.Period, r.index)
		default:
			return r.insight.RunGlobal(ctx, r.index)
		}
	case models.CompareRequest:
		return r.compare.RunRequest(ctx, req, r.index)
	case models.RiskRequest:
		switch {
		case req.Company != "":
			return r.risk.RunForCompany(ctx, req.Company, r.index)
		case req.Period != nil:
			return r.risk.RunForPeriod(ctx, *req.Period, r.index)
		case req.Section != "":
			return r.risk.RunForSection(ctx, req.Section, r.index)
		default:
			return r.risk.RunGlobal(ctx, r.index)
		}
	case models.QARequest:
		switch {
		case req.Company != "":
			return r.qa.RunForCompany(ctx, req.Question, req.Company, r.index)
		case req.Period != nil:
			return r.qa.RunForPeriod(ctx, req.Question, *req.Period, r.index)
		default:
			return r.qa.RunGlobal(ctx, req.Question, r.index)
		}
	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

func errorMessage(kind models.Kind, err error) string {
	if msg := models.DisplayMessage(err); msg != "" {
		return msg
	}
	return fmt.Sprintf("Error in %s analysis: %v", kind, err)
}

// Companies lists the indexed companies.
func (r *Router) Companies(ctx context.Context) ([]string, error) {
	return r.index.Companies(ctx)
}

// Quarters lists the indexed reporting periods.
func (r *Router) Quarters(ctx context.Context) ([]models.Period, error) {
	return r.index.Quarters(ctx)
}

// Stats reports index statistics.
func (r *Router) Stats(ctx context.Context) (*models.Stats, error) {
	return r.index.Stats(ctx)
}

// SuggestQuestions returns starter questions for the given scope.
func (r *Router) SuggestQuestions(company string, period *models.Period) []string {
	return analysis.SuggestQuestions(company, period)
}
