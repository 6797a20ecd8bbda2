package provider

import (
	"context"
	"net/http"
	"testing"

	"coinchart/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceFetchTokens(t *testing.T) {
	t.Parallel()

	p := NewBinanceProvider(testTracer(), Options{})
	stubSource(t, &p.httpSource, map[string]string{
		"/api/v3/ticker/24hr": `[
			{"symbol":"BTCUSDT","lastPrice":"42000.10","volume":"1234.5","priceChangePercent":"2.15"},
			{"symbol":"ETHBTC","lastPrice":"0.05","volume":"10","priceChangePercent":"0.1"},
			{"symbol":"DELISTEDUSDT","lastPrice":"1","volume":"1","priceChangePercent":"0"},
			{"symbol":"BADUSDT","lastPrice":"n/a","volume":"1","priceChangePercent":"0"},
			{"symbol":"USDT","lastPrice":"1","volume":"1","priceChangePercent":"0"},
			{"symbol":"USDTUSDT","lastPrice":"1","volume":"5","priceChangePercent":"0"}
		]`,
		"/api/v3/exchangeInfo": `{"symbols":[
			{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"ETHBTC","baseAsset":"ETH","quoteAsset":"BTC"},
			{"symbol":"BADUSDT","baseAsset":"BAD","quoteAsset":"USDT"},
			{"symbol":"USDT","baseAsset":"","quoteAsset":"USDT"},
			{"symbol":"USDTUSDT","baseAsset":"USDT","quoteAsset":"USDT"}
		]}`,
	})

	batch, err := p.FetchTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	btc := batch.Records[0]
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, "BTC", btc.Name)
	assert.Equal(t, "42000.1", btc.Price.String())
	assert.Equal(t, "1234.5", btc.Volume24h.String())
	assert.Equal(t, "51849123.45", btc.MarketCap.String())
	assert.Equal(t, "2.15", btc.PercentChange24h.String())
	assert.Equal(t, domain.PlaceholderRank, btc.Rank)
	assert.Equal(t, domain.DefaultRiskLevel, btc.RiskLevel)
	assert.Equal(t, domain.SourceBinance, btc.Source)
	assert.True(t, btc.LaunchDate.Equal(fixedNow))

	assert.Equal(t, "USDT", batch.Records[1].Symbol)

	require.Len(t, batch.Skipped, 2)
	assert.Equal(t, "BADUSDT", batch.Skipped[0].Symbol)
	assert.Contains(t, batch.Skipped[0].Reason, "lastPrice")
	assert.Equal(t, "USDT", batch.Skipped[1].Symbol)
	assert.Equal(t, "empty base symbol", batch.Skipped[1].Reason)
}

func TestBinanceFetchTokensExchangeInfoFailure(t *testing.T) {
	t.Parallel()

	p := NewBinanceProvider(testTracer(), Options{})
	stubSource(t, &p.httpSource, nil)
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/api/v3/ticker/24hr" {
				return jsonResponse(http.StatusOK, `[]`), nil
			}
			return jsonResponse(http.StatusTooManyRequests, `{"code":-1003}`), nil
		}),
	}

	_, err := p.FetchTokens(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange info")
}

func TestBybitFetchTokens(t *testing.T) {
	t.Parallel()

	p := NewBybitProvider(testTracer(), Options{})
	var gotCategory string
	stubSource(t, &p.httpSource, nil)
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v5/market/tickers" {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			gotCategory = req.URL.Query().Get("category")
			return jsonResponse(http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
				{"symbol":"SOLUSDT","lastPrice":"150.25","volume24h":"2000","price24hPcnt":"0.0123"},
				{"symbol":"SOLBTC","lastPrice":"0.002","volume24h":"5","price24hPcnt":"0.01"},
				{"symbol":"XUSDT","lastPrice":"1","volume24h":"","price24hPcnt":"0"}
			]}}`), nil
		}),
	}

	batch, err := p.FetchTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "spot", gotCategory)
	require.Len(t, batch.Records, 1)

	sol := batch.Records[0]
	assert.Equal(t, "SOL", sol.Symbol)
	assert.Equal(t, "150.25", sol.Price.String())
	assert.Equal(t, "300500", sol.MarketCap.String())
	assert.Equal(t, "1.23", sol.PercentChange24h.String())
	assert.Equal(t, domain.SourceBybit, sol.Source)

	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, "XUSDT", batch.Skipped[0].Symbol)
}

func TestBybitFetchTokensRetCode(t *testing.T) {
	t.Parallel()

	p := NewBybitProvider(testTracer(), Options{})
	stubSource(t, &p.httpSource, map[string]string{
		"/v5/market/tickers": `{"retCode":10001,"retMsg":"params error","result":{}}`,
	})

	_, err := p.FetchTokens(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "params error")
}

func TestSpotRecordExactArithmetic(t *testing.T) {
	rec, reason := spotRecord(domain.SourceBybit, "ABCUSDT", "0.1", "0.2", "-0.055", true)
	require.Empty(t, reason)
	assert.Equal(t, "0.02", rec.MarketCap.String())
	assert.Equal(t, "-5.5", rec.PercentChange24h.String())
}
