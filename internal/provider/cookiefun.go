package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"coinchart/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	cookieFunBaseURL     = "http://3.75.231.25"
	cookieFunPlaceholder = 999
)

// CookieFunProvider reads the CookieFun risk table, keyed by symbol.
type CookieFunProvider struct {
	httpSource
}

func NewCookieFunProvider(tracer trace.Tracer, opts Options) *CookieFunProvider {
	return &CookieFunProvider{httpSource: newHTTPSource("cookiefun", cookieFunBaseURL, tracer, opts)}
}

func (p *CookieFunProvider) Source() domain.Source { return domain.SourceCookieFun }

type cookieFunEntry struct {
	Name       string              `json:"name"`
	Price      decimal.NullDecimal `json:"price"`
	MarketCap  decimal.NullDecimal `json:"marketCap"`
	Volume     decimal.NullDecimal `json:"volume"`
	Change24h  decimal.NullDecimal `json:"24hChange"`
	Rank       *float64            `json:"rank"`
	LaunchDate json.RawMessage     `json:"launchDate"`
	Risk       *float64            `json:"risk"`
	Contract   *string             `json:"contract"`
	Chain      *string             `json:"chain"`
}

// FetchTokens loads /dex_risks. Entries that cannot be normalized are
// reported in the batch's Skipped list instead of failing the fetch.
func (p *CookieFunProvider) FetchTokens(ctx context.Context) (*domain.SourceBatch, error) {
	ctx, span := p.tracer.Start(ctx, "cookiefun.fetch-tokens")
	defer span.End()

	body, err := p.doRequest(ctx, "/dex_risks", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch cookiefun risks: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse cookiefun risks: %w", err)
	}

	now := p.now().UTC()
	batch := &domain.SourceBatch{Source: domain.SourceCookieFun, FetchedAt: now}

	for key, data := range raw {
		symbol := strings.ToUpper(strings.TrimSpace(key))
		var entry cookieFunEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			batch.Skipped = append(batch.Skipped, domain.SkippedRecord{Symbol: symbol, Reason: "malformed entry: " + err.Error()})
			continue
		}
		rec, reason := entry.toRecord(symbol, now)
		if reason != "" {
			batch.Skipped = append(batch.Skipped, domain.SkippedRecord{Symbol: symbol, Reason: reason})
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	sort.Slice(batch.Records, func(i, j int) bool { return batch.Records[i].Symbol < batch.Records[j].Symbol })
	sort.Slice(batch.Skipped, func(i, j int) bool { return batch.Skipped[i].Symbol < batch.Skipped[j].Symbol })

	span.SetAttributes(
		attribute.Int("records", len(batch.Records)),
		attribute.Int("skipped", len(batch.Skipped)),
	)
	return batch, nil
}

func (e cookieFunEntry) toRecord(symbol string, now time.Time) (domain.TokenRecord, string) {
	if symbol == "" {
		return domain.TokenRecord{}, "empty symbol"
	}
	if !e.Price.Valid {
		return domain.TokenRecord{}, "missing price"
	}
	launch, err := parseLaunchDate(e.LaunchDate, now)
	if err != nil {
		return domain.TokenRecord{}, err.Error()
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = symbol
	}

	rank := cookieFunPlaceholder
	if e.Rank != nil && *e.Rank > 0 {
		rank = int(math.Round(*e.Rank))
	}

	return domain.TokenRecord{
		Symbol:           symbol,
		Name:             name,
		Price:            e.Price.Decimal,
		MarketCap:        orZero(e.MarketCap),
		Volume24h:        orZero(e.Volume),
		PercentChange24h: orZero(e.Change24h),
		Rank:             rank,
		LaunchDate:       launch,
		RiskLevel:        riskLevel(e.Risk),
		Source:           domain.SourceCookieFun,
		Contract:         nonEmpty(e.Contract),
		Chain:            nonEmpty(e.Chain),
	}, ""
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func riskLevel(r *float64) int {
	if r == nil || math.IsNaN(*r) {
		return domain.DefaultRiskLevel
	}
	v := math.Round(*r)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

var launchLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseLaunchDate accepts an RFC3339 or YYYY-MM-DD string or epoch
// milliseconds. Absent, null, empty and zero values mean "now".
func parseLaunchDate(raw json.RawMessage, now time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return now, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid launchDate: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return now, nil
		}
		for _, layout := range launchLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochMillis(ms, now), nil
		}
		return time.Time{}, fmt.Errorf("invalid launchDate %q", s)
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid launchDate %s", string(raw))
	}
	return epochMillis(int64(ms), now), nil
}

func epochMillis(ms int64, now time.Time) time.Time {
	if ms == 0 {
		return now
	}
	return time.UnixMilli(ms).UTC()
}
