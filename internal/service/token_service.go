package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coinchart/internal/domain"
	"coinchart/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidArgument = errors.New("invalid argument")

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

type TokenReader interface {
	FindTokens(ctx context.Context, filter domain.TokenFilter) ([]domain.Token, error)
	CountTokens(ctx context.Context, filter domain.TokenFilter) (int, error)
	GetToken(ctx context.Context, symbol string, source domain.Source) (*domain.Token, error)
	SearchTokens(ctx context.Context, query string, limit int) ([]domain.Token, error)
	ListSignalTokens(ctx context.Context, strategy string, limit int) ([]domain.Token, error)
}

type UserReader interface {
	GetByWallet(ctx context.Context, wallet string) (*domain.User, error)
}

// TokenListQuery mirrors the public list endpoint's query string.
type TokenListQuery struct {
	Range   string
	Source  string
	SortBy  string
	SortDir string
}

type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type TokenPage struct {
	Tokens []domain.Token `json:"tokens"`
	Total  int            `json:"total"`
	Range  PageRange      `json:"range"`
}

type TokenSignals struct {
	Symbol  string          `json:"symbol"`
	Name    string          `json:"name"`
	Source  domain.Source   `json:"source"`
	Signals []domain.Signal `json:"signals"`
}

type SignalsView struct {
	Signals      []TokenSignals            `json:"signals"`
	Subscription domain.SubscriptionStatus `json:"subscription"`
}

type TokenServiceOptions struct {
	MinAge          time.Duration
	ListCacheTTL    time.Duration
	FreeTierTokens  int
	FreeTierSignals int
}

// TokenService serves the read API.
type TokenService struct {
	tracer trace.Tracer
	tokens TokenReader
	users  UserReader
	redis  RedisClient
	opts   TokenServiceOptions
	log    *logger.Logger
	now    func() time.Time
}

func NewTokenService(
	tracer trace.Tracer,
	tokens TokenReader,
	users UserReader,
	redisClient RedisClient,
	opts TokenServiceOptions,
	log *logger.Logger,
) *TokenService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.FreeTierTokens <= 0 {
		opts.FreeTierTokens = 3
	}
	if opts.FreeTierSignals <= 0 {
		opts.FreeTierSignals = 3
	}
	return &TokenService{
		tracer: tracer,
		tokens: tokens,
		users:  users,
		redis:  redisClient,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// ParseRange turns "100" into the first 100 rows and "101-200" into rows
// 101 through 200, returning skip and limit.
func ParseRange(raw string) (skip, limit int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, defaultPageSize, nil
	}
	if startStr, endStr, ok := strings.Cut(raw, "-"); ok {
		start, err1 := strconv.Atoi(strings.TrimSpace(startStr))
		end, err2 := strconv.Atoi(strings.TrimSpace(endStr))
		if err1 != nil || err2 != nil || start < 1 || end < start {
			return 0, 0, fmt.Errorf("%w: range %q", ErrInvalidArgument, raw)
		}
		skip, limit = start-1, end-start+1
	} else {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("%w: range %q", ErrInvalidArgument, raw)
		}
		limit = n
	}
	if limit > maxPageSize {
		return 0, 0, fmt.Errorf("%w: range wider than %d", ErrInvalidArgument, maxPageSize)
	}
	return skip, limit, nil
}

func (s *TokenService) ListTokens(ctx context.Context, q TokenListQuery) (*TokenPage, error) {
	ctx, span := s.tracer.Start(ctx, "token-service.list-tokens")
	defer span.End()

	skip, limit, err := ParseRange(q.Range)
	if err != nil {
		return nil, err
	}

	source := domain.SourceCookieFun
	if q.Source != "" {
		if source, err = domain.ParseSource(q.Source); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "marketCap"
	}
	if _, ok := domain.SortFields[sortBy]; !ok {
		return nil, fmt.Errorf("%w: unsupported sortBy %q", ErrInvalidArgument, sortBy)
	}
	desc := !strings.EqualFold(q.SortDir, "asc")

	cacheKey := fmt.Sprintf("tokens:list:%s:%s:%t:%d:%d", source, sortBy, desc, skip, limit)
	if page := s.cachedPage(ctx, cacheKey); page != nil {
		return page, nil
	}

	cutoff := s.now().UTC().Add(-s.opts.MinAge)
	filter := domain.TokenFilter{
		Source:         source,
		LaunchedBefore: &cutoff,
		SortBy:         sortBy,
		SortDesc:       desc,
		Skip:           skip,
		Limit:          limit,
	}

	tokens, err := s.tokens.FindTokens(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.tokens.CountTokens(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}

	page := &TokenPage{
		Tokens: tokens,
		Total:  total,
		Range:  PageRange{Start: skip + 1, End: min(skip+limit, total)},
	}
	s.cachePage(ctx, cacheKey, page)
	return page, nil
}

func (s *TokenService) GetToken(ctx context.Context, symbol, source string) (*domain.Token, error) {
	ctx, span := s.tracer.Start(ctx, "token-service.get-token")
	defer span.End()

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	}
	var src domain.Source
	if source != "" {
		var err error
		if src, err = domain.ParseSource(source); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	return s.tokens.GetToken(ctx, symbol, src)
}

func (s *TokenService) SearchTokens(ctx context.Context, query string) ([]domain.Token, error) {
	ctx, span := s.tracer.Start(ctx, "token-service.search-tokens")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	tokens, err := s.tokens.SearchTokens(ctx, query, 0)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	return tokens, nil
}

// Tier resolves a wallet's effective subscription. Unknown or empty wallets
// are Free.
func (s *TokenService) Tier(ctx context.Context, wallet string) (domain.SubscriptionStatus, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" || s.users == nil {
		return domain.SubscriptionFree, nil
	}
	u, err := s.users.GetByWallet(ctx, wallet)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SubscriptionFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve subscription: %w", err)
	}
	return u.EffectiveStatus(s.now()), nil
}

// ListSignals returns tokens with signals, most recent first. Free callers
// get a few tokens with their latest signals; Premium gets everything.
func (s *TokenService) ListSignals(ctx context.Context, strategy, wallet string) (*SignalsView, error) {
	ctx, span := s.tracer.Start(ctx, "token-service.list-signals")
	defer span.End()

	tier, err := s.Tier(ctx, wallet)
	if err != nil {
		return nil, err
	}

	limit := 0
	if tier != domain.SubscriptionPremium {
		limit = s.opts.FreeTierTokens
	}
	strategy = strings.TrimSpace(strategy)
	tokens, err := s.tokens.ListSignalTokens(ctx, strategy, limit)
	if err != nil {
		return nil, err
	}

	view := &SignalsView{Signals: make([]TokenSignals, 0, len(tokens)), Subscription: tier}
	for i := range tokens {
		tok := &tokens[i]
		if strategy != "" {
			tok.Signals = filterStrategy(tok.Signals, strategy)
		}
		sigs := tok.Signals
		if tier != domain.SubscriptionPremium {
			sigs = tok.LatestSignals(s.opts.FreeTierSignals)
		}
		view.Signals = append(view.Signals, TokenSignals{
			Symbol:  tok.Symbol,
			Name:    tok.Name,
			Source:  tok.Source,
			Signals: sigs,
		})
	}
	return view, nil
}

func filterStrategy(in []domain.Signal, strategy string) []domain.Signal {
	out := make([]domain.Signal, 0, len(in))
	for _, sig := range in {
		if sig.Strategy == strategy {
			out = append(out, sig)
		}
	}
	return out
}

func (s *TokenService) cachedPage(ctx context.Context, key string) *TokenPage {
	if s.redis == nil || s.opts.ListCacheTTL <= 0 {
		return nil
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("redis cache read error", logger.String("key", key), logger.Error(err))
		}
		return nil
	}
	var page TokenPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil
	}
	return &page
}

func (s *TokenService) cachePage(ctx context.Context, key string, page *TokenPage) {
	if s.redis == nil || s.opts.ListCacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.opts.ListCacheTTL).Err(); err != nil {
		s.log.Warn("redis cache write error", logger.String("key", key), logger.Error(err))
	}
}
