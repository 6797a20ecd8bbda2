package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"coinchart/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttl    map[string]time.Duration
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttl: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

type fakeSource struct {
	source domain.Source
	batch  *domain.SourceBatch
	err    error
}

func (f *fakeSource) Source() domain.Source { return f.source }

func (f *fakeSource) FetchTokens(ctx context.Context) (*domain.SourceBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

// memStore is an in-memory token table keyed by (symbol, source).
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[string]*domain.Token
	failOn    map[string]error
	rankErr   error
	listErr   error
	saveErr   error
	saveCalls int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*domain.Token), failOn: make(map[string]error)}
}

func key(symbol string, source domain.Source) string { return string(source) + "/" + symbol }

func (m *memStore) UpsertToken(ctx context.Context, rec domain.TokenRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[rec.Symbol]; err != nil {
		return 0, err
	}
	k := key(rec.Symbol, rec.Source)
	row, ok := m.rows[k]
	if !ok {
		m.nextID++
		row = &domain.Token{ID: m.nextID, Signals: []domain.Signal{}}
		m.rows[k] = row
	}
	signals := row.Signals
	*row = domain.Token{
		ID: row.ID, Symbol: rec.Symbol, Name: rec.Name, Price: rec.Price, MarketCap: rec.MarketCap,
		Volume24h: rec.Volume24h, PercentChange24h: rec.PercentChange24h, Rank: rec.Rank,
		LaunchDate: rec.LaunchDate, RiskLevel: rec.RiskLevel, Source: rec.Source,
		Contract: rec.Contract, Chain: rec.Chain, Signals: signals,
	}
	return row.ID, nil
}

func (m *memStore) ListTokensBySource(ctx context.Context, source domain.Source) ([]domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Token
	for _, row := range m.rows {
		if row.Source == source {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memStore) UpdateRanks(ctx context.Context, ranks []domain.RankAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rankErr != nil {
		return m.rankErr
	}
	for _, ra := range ranks {
		for _, row := range m.rows {
			if row.ID == ra.ID {
				row.Rank = ra.Rank
			}
		}
	}
	return nil
}

func (m *memStore) FindSignalCandidates(ctx context.Context, source domain.Source, tickers []string) ([]domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	want := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		want[t] = true
	}
	var out []domain.Token
	for _, row := range m.rows {
		sym := strings.ToUpper(row.Symbol)
		if row.Source != source || !want[sym] || strings.HasSuffix(sym, "UP") || strings.HasSuffix(sym, "DOWN") {
			continue
		}
		cp := *row
		cp.Signals = append([]domain.Signal(nil), row.Signals...)
		out = append(out, cp)
	}
	SortByMarketCap(out)
	return out, nil
}

func (m *memStore) SaveSignals(ctx context.Context, id int64, signals []domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, row := range m.rows {
		if row.ID == id {
			row.Signals = append([]domain.Signal(nil), signals...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) get(symbol string, source domain.Source) *domain.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key(symbol, source)]
}

type fakeFeed struct {
	feed  []domain.FeedSignal
	err   error
	calls int
}

func (f *fakeFeed) FetchSignals(ctx context.Context) ([]domain.FeedSignal, error) {
	f.calls++
	return f.feed, f.err
}

type fakeReader struct {
	tokens       []domain.Token
	total        int
	err          error
	findCalls    int
	lastFilter   domain.TokenFilter
	lastStrategy string
	lastLimit    int
}

func (f *fakeReader) FindTokens(ctx context.Context, filter domain.TokenFilter) ([]domain.Token, error) {
	f.findCalls++
	f.lastFilter = filter
	return f.tokens, f.err
}

func (f *fakeReader) CountTokens(ctx context.Context, filter domain.TokenFilter) (int, error) {
	return f.total, f.err
}

func (f *fakeReader) GetToken(ctx context.Context, symbol string, source domain.Source) (*domain.Token, error) {
	for i := range f.tokens {
		t := &f.tokens[i]
		if strings.EqualFold(t.Symbol, symbol) && (source == "" || t.Source == source) {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReader) SearchTokens(ctx context.Context, query string, limit int) ([]domain.Token, error) {
	var out []domain.Token
	for _, t := range f.tokens {
		if strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(query)) {
			out = append(out, t)
		}
	}
	return out, f.err
}

func (f *fakeReader) ListSignalTokens(ctx context.Context, strategy string, limit int) ([]domain.Token, error) {
	f.lastStrategy = strategy
	f.lastLimit = limit
	out := append([]domain.Token(nil), f.tokens...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, f.err
}

type fakeUsers struct {
	users map[string]*domain.User
	err   error
}

func (f *fakeUsers) GetByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[wallet]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

var errBoom = errors.New("boom")
