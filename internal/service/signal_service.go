package service

import (
	"context"
	"fmt"
	"sort"

	"coinchart/internal/domain"
	"coinchart/internal/metrics"
	"coinchart/internal/signals"
	"coinchart/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type FeedSource interface {
	FetchSignals(ctx context.Context) ([]domain.FeedSignal, error)
}

type SignalStore interface {
	FindSignalCandidates(ctx context.Context, source domain.Source, tickers []string) ([]domain.Token, error)
	SaveSignals(ctx context.Context, id int64, signals []domain.Signal) error
}

// SignalService attaches feed signals to stored tokens of one source.
type SignalService struct {
	tracer  trace.Tracer
	feed    FeedSource
	store   SignalStore
	matcher *signals.Matcher
	source  domain.Source
	metrics *metrics.Recorder
	log     *logger.Logger
}

func NewSignalService(
	tracer trace.Tracer,
	feed FeedSource,
	store SignalStore,
	matcher *signals.Matcher,
	source domain.Source,
	rec *metrics.Recorder,
	log *logger.Logger,
) *SignalService {
	if log == nil {
		log = logger.Nop()
	}
	if matcher == nil {
		matcher = signals.NewMatcher()
	}
	return &SignalService{
		tracer:  tracer,
		feed:    feed,
		store:   store,
		matcher: matcher,
		source:  source,
		metrics: rec,
		log:     log,
	}
}

// RunPass fetches the feed once and applies it to every candidate token.
// Per-token failures are logged and counted; only a feed or candidate
// lookup failure aborts the pass.
func (s *SignalService) RunPass(ctx context.Context) (domain.SignalPassResult, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.run-pass")
	defer span.End()

	var result domain.SignalPassResult

	feed, err := s.feed.FetchSignals(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch signal feed: %w", err)
	}
	result.FeedSize = len(feed)

	tickers := AvailableTickers(feed)
	if len(tickers) == 0 {
		s.log.Info("signal feed carried no tickers", logger.Int("feed_size", len(feed)))
		return result, nil
	}

	candidates, err := s.store.FindSignalCandidates(ctx, s.source, tickers)
	if err != nil {
		return result, fmt.Errorf("load signal candidates: %w", err)
	}
	result.Candidates = len(candidates)
	span.SetAttributes(attribute.Int("feed_size", len(feed)), attribute.Int("candidates", len(candidates)))

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tok := &candidates[i]
		outcome, err := s.matcher.Apply(tok, feed)
		if err != nil {
			s.log.Warn("signal match failed", logger.String("symbol", tok.Symbol), logger.Error(err))
			result.Failed++
			continue
		}
		s.metrics.RecordSignalOutcome(outcome.String())

		switch outcome {
		case signals.OutcomeSkipped:
			result.Skipped++
		case signals.OutcomeNoMatch:
			result.NoMatch++
		case signals.OutcomeDuplicate:
			result.Duplicates++
		case signals.OutcomeAppended:
			if err := s.store.SaveSignals(ctx, tok.ID, tok.Signals); err != nil {
				s.log.Error("save signals failed", logger.String("symbol", tok.Symbol), logger.Error(err))
				result.Failed++
				continue
			}
			result.Appended++
		}
	}

	s.log.Info("signal pass finished",
		logger.String("source", string(s.source)),
		logger.Int("feed_size", result.FeedSize),
		logger.Int("candidates", result.Candidates),
		logger.Int("appended", result.Appended),
		logger.Int("duplicates", result.Duplicates),
		logger.Int("failed", result.Failed),
	)
	return result, nil
}

// AvailableTickers returns the distinct normalized tickers named in feed.
func AvailableTickers(feed []domain.FeedSignal) []string {
	seen := make(map[string]struct{})
	for _, fs := range feed {
		raw, ok := signals.ExtractTicker(fs.Description)
		if !ok {
			continue
		}
		if t := signals.NormalizeTicker(raw); t != "" {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
