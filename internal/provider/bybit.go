package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"coinchart/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const bybitBaseURL = "https://api.bybit.com"

// BybitProvider lists USDT spot tickers from the Bybit v5 API.
type BybitProvider struct {
	httpSource
}

func NewBybitProvider(tracer trace.Tracer, opts Options) *BybitProvider {
	return &BybitProvider{httpSource: newHTTPSource("bybit", bybitBaseURL, tracer, opts)}
}

func (p *BybitProvider) Source() domain.Source { return domain.SourceBybit }

type bybitTickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string `json:"category"`
		List     []struct {
			Symbol       string `json:"symbol"`
			LastPrice    string `json:"lastPrice"`
			Volume24h    string `json:"volume24h"`
			Price24hPcnt string `json:"price24hPcnt"`
		} `json:"list"`
	} `json:"result"`
}

func (p *BybitProvider) FetchTokens(ctx context.Context) (*domain.SourceBatch, error) {
	ctx, span := p.tracer.Start(ctx, "bybit.fetch-tokens")
	defer span.End()

	body, err := p.doRequest(ctx, "/v5/market/tickers", url.Values{"category": {"spot"}})
	if err != nil {
		return nil, fmt.Errorf("fetch bybit tickers: %w", err)
	}

	var resp bybitTickersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse bybit tickers: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit API error %d: %s", resp.RetCode, resp.RetMsg)
	}

	now := p.now().UTC()
	batch := &domain.SourceBatch{Source: domain.SourceBybit, FetchedAt: now}
	for _, t := range resp.Result.List {
		if !strings.HasSuffix(t.Symbol, quoteAsset) {
			continue
		}
		rec, reason := spotRecord(domain.SourceBybit, t.Symbol, t.LastPrice, t.Volume24h, t.Price24hPcnt, true)
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
