package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"coinchart/internal/domain"
	"coinchart/internal/metrics"
	"coinchart/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const ingestStatusKeyPrefix = "ingest:last:"

// TokenSource is one upstream market-data adapter.
type TokenSource interface {
	Source() domain.Source
	FetchTokens(ctx context.Context) (*domain.SourceBatch, error)
}

type IngestStore interface {
	UpsertToken(ctx context.Context, rec domain.TokenRecord) (int64, error)
	ListTokensBySource(ctx context.Context, source domain.Source) ([]domain.Token, error)
	UpdateRanks(ctx context.Context, ranks []domain.RankAssignment) error
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// IngestService upserts adapter batches and keeps per-source ranks dense.
type IngestService struct {
	tracer   trace.Tracer
	store    IngestStore
	redis    RedisClient
	metrics  *metrics.Recorder
	log      *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewIngestService(
	tracer trace.Tracer,
	store IngestStore,
	redisClient RedisClient,
	rec *metrics.Recorder,
	log *logger.Logger,
) *IngestService {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestService{
		tracer:   tracer,
		store:    store,
		redis:    redisClient,
		metrics:  rec,
		log:      log,
		validate: newRecordValidator(),
		now:      time.Now,
	}
}

// newRecordValidator validates decimals by sign so gte=0 works without a
// float conversion.
func newRecordValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.Sign()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Ingest runs one pass for src: fetch, validate, upsert each record, then
// recompute ranks. A fetch error aborts the pass. Per-record problems are
// counted and the pass continues.
func (s *IngestService) Ingest(ctx context.Context, src TokenSource) (domain.IngestResult, error) {
	source := src.Source()
	ctx, span := s.tracer.Start(ctx, "ingest-service.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("source", string(source)))

	start := s.now()
	result := domain.IngestResult{Source: source}
	log := s.log.With(logger.String("source", string(source)))

	batch, err := src.FetchTokens(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch %s: %w", source, err)
	}

	result.Fetched = len(batch.Records) + len(batch.Skipped)
	for _, sk := range batch.Skipped {
		log.Warn("skipping upstream record", logger.String("symbol", sk.Symbol), logger.String("reason", sk.Reason))
	}
	result.Skipped = len(batch.Skipped)

	for _, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rec.Source != source {
			log.Warn("skipping record from another source", logger.String("symbol", rec.Symbol), logger.String("record_source", string(rec.Source)))
			result.Skipped++
			continue
		}
		if err := s.validate.StructCtx(ctx, rec); err != nil {
			log.Warn("skipping invalid record", logger.String("symbol", rec.Symbol), logger.Error(err))
			result.Skipped++
			continue
		}
		if _, err := s.store.UpsertToken(ctx, rec); err != nil {
			log.Error("upsert failed", logger.String("symbol", rec.Symbol), logger.Error(err))
			result.Failed++
			continue
		}
		result.Upserted++
	}

	ranked, rankErr := s.RecomputeRanks(ctx, source)
	result.Ranked = ranked
	result.FinishedAt = s.now().UTC()
	result.Duration = result.FinishedAt.Sub(start)

	s.metrics.RecordIngest(string(source), "upserted", result.Upserted)
	s.metrics.RecordIngest(string(source), "skipped", result.Skipped)
	s.metrics.RecordIngest(string(source), "failed", result.Failed)
	s.metrics.RecordIngestFinished(string(source), result.FinishedAt)
	s.storeStatus(ctx, result)

	log.Info("ingest finished",
		logger.Int("fetched", result.Fetched),
		logger.Int("upserted", result.Upserted),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", result.Failed),
		logger.Int("ranked", result.Ranked),
		logger.Duration("duration", result.Duration),
	)

	if rankErr != nil {
		return result, fmt.Errorf("recompute %s ranks: %w", source, rankErr)
	}
	return result, nil
}

// RecomputeRanks assigns rank 1..N by market cap (desc), ties by symbol.
func (s *IngestService) RecomputeRanks(ctx context.Context, source domain.Source) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ingest-service.recompute-ranks")
	defer span.End()

	tokens, err := s.store.ListTokensBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	SortByMarketCap(tokens)

	ranks := make([]domain.RankAssignment, len(tokens))
	for i, t := range tokens {
		ranks[i] = domain.RankAssignment{ID: t.ID, Rank: i + 1}
	}
	if err := s.store.UpdateRanks(ctx, ranks); err != nil {
		return 0, err
	}
	return len(ranks), nil
}

// SortByMarketCap orders tokens by market cap descending, then symbol.
func SortByMarketCap(tokens []domain.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if c := tokens[i].MarketCap.Cmp(tokens[j].MarketCap); c != 0 {
			return c > 0
		}
		return tokens[i].Symbol < tokens[j].Symbol
	})
}

// LastRun returns the most recent result for source, or nil if none is stored.
func (s *IngestService) LastRun(ctx context.Context, source domain.Source) (*domain.IngestResult, error) {
	if s.redis == nil {
		return nil, nil
	}
	data, err := s.redis.Get(ctx, ingestStatusKeyPrefix+string(source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res domain.IngestResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LastRuns collects LastRun for every source that has one.
func (s *IngestService) LastRuns(ctx context.Context) (map[domain.Source]*domain.IngestResult, error) {
	out := make(map[domain.Source]*domain.IngestResult, len(domain.Sources))
	for _, src := range domain.Sources {
		res, err := s.LastRun(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("read %s status: %w", src, err)
		}
		if res != nil {
			out[src] = res
		}
	}
	return out, nil
}

func (s *IngestService) storeStatus(ctx context.Context, res domain.IngestResult) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, ingestStatusKeyPrefix+string(res.Source), data, 0).Err(); err != nil {
		s.log.Warn("redis status write failed", logger.String("source", string(res.Source)), logger.Error(err))
	}
}
