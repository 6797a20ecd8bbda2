package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"coinchart/internal/domain"
	"coinchart/internal/metrics"
	"coinchart/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var launch = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func rec(symbol string, source domain.Source, marketCap string) domain.TokenRecord {
	return domain.TokenRecord{
		Symbol:     symbol,
		Name:       symbol,
		Price:      decimal.RequireFromString("1"),
		MarketCap:  decimal.RequireFromString(marketCap),
		Volume24h:  decimal.RequireFromString("10"),
		LaunchDate: launch,
		RiskLevel:  domain.DefaultRiskLevel,
		Source:     source,
	}
}

func newIngest(store IngestStore, rdb RedisClient) *IngestService {
	svc := NewIngestService(testTracer, store, rdb, metrics.New(prometheus.NewRegistry()), logger.Nop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestIngestUpsertsAndRanks(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rdb := newFakeRedis()
	svc := newIngest(store, rdb)

	src := &fakeSource{source: domain.SourceBinance, batch: &domain.SourceBatch{
		Source: domain.SourceBinance,
		Records: []domain.TokenRecord{
			rec("ETH", domain.SourceBinance, "500"),
			rec("BTC", domain.SourceBinance, "900"),
			rec("ADA", domain.SourceBinance, "500"),
		},
		Skipped: []domain.SkippedRecord{{Symbol: "BADUSDT", Reason: "invalid lastPrice"}},
	}}

	res, err := svc.Ingest(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 3, res.Ranked)

	assert.Equal(t, 1, store.get("BTC", domain.SourceBinance).Rank)
	assert.Equal(t, 2, store.get("ADA", domain.SourceBinance).Rank)
	assert.Equal(t, 3, store.get("ETH", domain.SourceBinance).Rank)

	var stored domain.IngestResult
	require.NoError(t, json.Unmarshal(rdb.data["ingest:last:Binance"], &stored))
	assert.Equal(t, 3, stored.Upserted)

	last, err := svc.LastRun(context.Background(), domain.SourceBinance)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.SourceBinance, last.Source)
}

func TestIngestRanksAreDenseAcrossPasses(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newIngest(store, nil)

	first := &fakeSource{source: domain.SourceBybit, batch: &domain.SourceBatch{Records: []domain.TokenRecord{
		rec("AAA", domain.SourceBybit, "1"),
		rec("BBB", domain.SourceBybit, "2"),
	}}}
	_, err := svc.Ingest(context.Background(), first)
	require.NoError(t, err)

	second := &fakeSource{source: domain.SourceBybit, batch: &domain.SourceBatch{Records: []domain.TokenRecord{
		rec("CCC", domain.SourceBybit, "3"),
		rec("AAA", domain.SourceBybit, "10"),
	}}}
	res, err := svc.Ingest(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ranked)

	assert.Equal(t, 1, store.get("AAA", domain.SourceBybit).Rank)
	assert.Equal(t, 2, store.get("CCC", domain.SourceBybit).Rank)
	assert.Equal(t, 3, store.get("BBB", domain.SourceBybit).Rank)
}

func TestIngestRanksIgnoreProviderRank(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newIngest(store, nil)

	a := rec("AAA", domain.SourceCookieFun, "5")
	a.Rank = 999
	b := rec("BBB", domain.SourceCookieFun, "50")
	b.Rank = 1
	_, err := svc.Ingest(context.Background(), &fakeSource{source: domain.SourceCookieFun, batch: &domain.SourceBatch{
		Records: []domain.TokenRecord{a, b},
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, store.get("BBB", domain.SourceCookieFun).Rank)
	assert.Equal(t, 2, store.get("AAA", domain.SourceCookieFun).Rank)
}

func TestIngestSkipsInvalidAndContinuesOnStoreError(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOn["DOGE"] = errBoom
	svc := newIngest(store, nil)

	negVol := rec("NEG", domain.SourceBinance, "1")
	negVol.Volume24h = decimal.RequireFromString("-0.01")
	noName := rec("NONAME", domain.SourceBinance, "1")
	noName.Name = ""
	risky := rec("RISKY", domain.SourceBinance, "1")
	risky.RiskLevel = 101
	foreign := rec("FOREIGN", domain.SourceBybit, "1")

	res, err := svc.Ingest(context.Background(), &fakeSource{source: domain.SourceBinance, batch: &domain.SourceBatch{
		Records: []domain.TokenRecord{negVol, noName, risky, foreign, rec("DOGE", domain.SourceBinance, "1"), rec("SOL", domain.SourceBinance, "2")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Upserted)
	assert.Nil(t, store.get("NEG", domain.SourceBinance))
	assert.Equal(t, 1, store.get("SOL", domain.SourceBinance).Rank)
}

func TestIngestFetchErrorAborts(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newIngest(store, nil)

	_, err := svc.Ingest(context.Background(), &fakeSource{source: domain.SourceBybit, err: errBoom})
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, store.rows)
}

func TestIngestRankErrorIsReturnedAfterUpserts(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.rankErr = errBoom
	rdb := newFakeRedis()
	svc := newIngest(store, rdb)

	res, err := svc.Ingest(context.Background(), &fakeSource{source: domain.SourceBybit, batch: &domain.SourceBatch{
		Records: []domain.TokenRecord{rec("AAA", domain.SourceBybit, "1")},
	}})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, res.Upserted)
	assert.Contains(t, rdb.data, "ingest:last:Bybit")
}

func TestIngestPreservesSignals(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newIngest(store, nil)
	src := &fakeSource{source: domain.SourceBinance, batch: &domain.SourceBatch{
		Records: []domain.TokenRecord{rec("BTC", domain.SourceBinance, "1")},
	}}

	_, err := svc.Ingest(context.Background(), src)
	require.NoError(t, err)
	row := store.get("BTC", domain.SourceBinance)
	require.NoError(t, store.SaveSignals(context.Background(), row.ID, []domain.Signal{{Description: "[$BTC] $1"}}))

	src.batch.Records[0].Price = decimal.RequireFromString("2")
	_, err = svc.Ingest(context.Background(), src)
	require.NoError(t, err)

	row = store.get("BTC", domain.SourceBinance)
	assert.Equal(t, "2", row.Price.String())
	require.Len(t, row.Signals, 1)
}

func TestSortByMarketCapTieBreak(t *testing.T) {
	tokens := []domain.Token{
		{Symbol: "ZZZ", MarketCap: decimal.RequireFromString("10")},
		{Symbol: "AAA", MarketCap: decimal.RequireFromString("10.0")},
		{Symbol: "MMM", MarketCap: decimal.RequireFromString("11")},
	}
	SortByMarketCap(tokens)
	assert.Equal(t, "MMM", tokens[0].Symbol)
	assert.Equal(t, "AAA", tokens[1].Symbol)
	assert.Equal(t, "ZZZ", tokens[2].Symbol)
}

func TestLastRunsAndMissingStatus(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	svc := newIngest(newMemStore(), rdb)

	runs, err := svc.LastRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = svc.Ingest(context.Background(), &fakeSource{source: domain.SourceCookieFun, batch: &domain.SourceBatch{}})
	require.NoError(t, err)

	runs, err = svc.LastRuns(context.Background())
	require.NoError(t, err)
	require.Contains(t, runs, domain.SourceCookieFun)
	assert.Len(t, runs, 1)

	rdb.getErr = errBoom
	_, err = svc.LastRuns(context.Background())
	assert.ErrorIs(t, err, errBoom)
}
