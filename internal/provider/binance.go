package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"coinchart/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	binanceBaseURL = "https://api.binance.com"
	quoteAsset     = "USDT"
)

// BinanceProvider lists USDT spot pairs from the Binance public API.
type BinanceProvider struct {
	httpSource
}

func NewBinanceProvider(tracer trace.Tracer, opts Options) *BinanceProvider {
	return &BinanceProvider{httpSource: newHTTPSource("binance", binanceBaseURL, tracer, opts)}
}

func (p *BinanceProvider) Source() domain.Source { return domain.SourceBinance }

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

func (p *BinanceProvider) FetchTokens(ctx context.Context) (*domain.SourceBatch, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-tokens")
	defer span.End()

	body, err := p.doRequest(ctx, "/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch binance tickers: %w", err)
	}
	var tickers []binanceTicker
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("parse binance tickers: %w", err)
	}

	body, err = p.doRequest(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch binance exchange info: %w", err)
	}
	var info binanceExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse binance exchange info: %w", err)
	}

	usdtPairs := make(map[string]struct{}, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset == quoteAsset {
			usdtPairs[s.Symbol] = struct{}{}
		}
	}

	now := p.now().UTC()
	batch := &domain.SourceBatch{Source: domain.SourceBinance, FetchedAt: now}
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, quoteAsset) {
			continue
		}
		if _, ok := usdtPairs[t.Symbol]; !ok {
			continue
		}
		rec, reason := spotRecord(domain.SourceBinance, t.Symbol, t.LastPrice, t.Volume, t.PriceChangePercent, false)
		if reason != "" {
			batch.Skipped = append(batch.Skipped, domain.SkippedRecord{Symbol: t.Symbol, Reason: reason})
			continue
		}
		rec.LaunchDate = now
		batch.Records = append(batch.Records, rec)
	}

	span.SetAttributes(
		attribute.Int("records", len(batch.Records)),
		attribute.Int("skipped", len(batch.Skipped)),
	)
	return batch, nil
}

// spotRecord normalizes one exchange ticker. When changeIsRatio is set the
// 24h change is a fraction and gets scaled to percent.
func spotRecord(source domain.Source, pair, lastPrice, volume, change string, changeIsRatio bool) (domain.TokenRecord, string) {
	symbol := strings.TrimSuffix(pair, quoteAsset)
	if symbol == "" {
		return domain.TokenRecord{}, "empty base symbol"
	}
	price, err := parseDecimal(lastPrice)
	if err != nil {
		return domain.TokenRecord{}, fmt.Sprintf("invalid lastPrice %q", lastPrice)
	}
	vol, err := parseDecimal(volume)
	if err != nil {
		return domain.TokenRecord{}, fmt.Sprintf("invalid volume %q", volume)
	}
	pct, err := parseDecimal(change)
	if err != nil {
		return domain.TokenRecord{}, fmt.Sprintf("invalid 24h change %q", change)
	}
	if changeIsRatio {
		pct = pct.Shift(2)
	}

	return domain.TokenRecord{
		Symbol:           symbol,
		Name:             symbol,
		Price:            price,
		MarketCap:        vol.Mul(price),
		Volume24h:        vol,
		PercentChange24h: pct,
		Rank:             domain.PlaceholderRank,
		RiskLevel:        domain.DefaultRiskLevel,
		Source:           source,
	}, ""
}
