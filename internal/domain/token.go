package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidToken = errors.New("invalid token")
)

// Source identifies the upstream market-data provider a token row came from.
type Source string

const (
	SourceCookieFun Source = "CookieFun"
	SourceBinance   Source = "Binance"
	SourceBybit     Source = "Bybit"
)

// Sources lists every supported provider.
var Sources = []Source{SourceCookieFun, SourceBinance, SourceBybit}

func (s Source) IsValid() bool {
	switch s {
	case SourceCookieFun, SourceBinance, SourceBybit:
		return true
	}
	return false
}

// ParseSource matches a provider name case-insensitively.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range Sources {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", raw)
}

type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

const (
	DefaultRiskLevel   = 50
	PlaceholderRank    = 0
	MaxSignalsPerToken = 100
)

// Signal is a timestamped note matched to a token from the signal feed.
type Signal struct {
	Strategy    string          `json:"strategy"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        SignalType      `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Confidence  int             `json:"confidence"`
	Description string          `json:"description"`
	Risks       []string        `json:"risks"`
}

// Token is one stored row, keyed by (Symbol, Source).
type Token struct {
	ID               int64           `json:"id"`
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	MarketCap        decimal.Decimal `json:"marketCap"`
	Volume24h        decimal.Decimal `json:"volume24h"`
	PercentChange24h decimal.Decimal `json:"percentChange24h"`
	Rank             int             `json:"rank"`
	LaunchDate       time.Time       `json:"launchDate"`
	RiskLevel        int             `json:"riskLevel"`
	Source           Source          `json:"source"`
	Contract         *string         `json:"contract,omitempty"`
	Chain            *string         `json:"chain,omitempty"`
	Signals          []Signal        `json:"signals"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// LatestSignals returns up to n of the most recent signals, newest last.
func (t *Token) LatestSignals(n int) []Signal {
	if n <= 0 || len(t.Signals) <= n {
		return t.Signals
	}
	return t.Signals[len(t.Signals)-n:]
}

// TokenRecord is the normalized shape every source adapter emits.
// The upsert overwrites every field of an existing row except the signals.
type TokenRecord struct {
	Symbol           string          `json:"symbol" validate:"required,max=64"`
	Name             string          `json:"name" validate:"required"`
	Price            decimal.Decimal `json:"price" validate:"gte=0"`
	MarketCap        decimal.Decimal `json:"marketCap" validate:"gte=0"`
	Volume24h        decimal.Decimal `json:"volume24h" validate:"gte=0"`
	PercentChange24h decimal.Decimal `json:"percentChange24h"`
	Rank             int             `json:"rank" validate:"gte=0"`
	LaunchDate       time.Time       `json:"launchDate" validate:"required"`
	RiskLevel        int             `json:"riskLevel" validate:"min=0,max=100"`
	Source           Source          `json:"source" validate:"required,oneof=CookieFun Binance Bybit"`
	Contract         *string         `json:"contract,omitempty"`
	Chain            *string         `json:"chain,omitempty"`
}

// SkippedRecord describes an upstream entry an adapter could not normalize.
type SkippedRecord struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// SourceBatch is the output of one adapter fetch.
type SourceBatch struct {
	Source    Source
	FetchedAt time.Time
	Records   []TokenRecord
	Skipped   []SkippedRecord
}

// RankAssignment is one row of a rank recomputation.
type RankAssignment struct {
	ID   int64
	Rank int
}

// IngestResult summarizes one adapter pass.
type IngestResult struct {
	Source     Source        `json:"source"`
	Fetched    int           `json:"fetched"`
	Upserted   int           `json:"upserted"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Ranked     int           `json:"ranked"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// FeedSignal is one entry of the upstream signal feed.
type FeedSignal struct {
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Risks       []string `json:"risks,omitempty"`
}

// SignalPassResult summarizes one signal-matching pass.
type SignalPassResult struct {
	FeedSize   int `json:"feed_size"`
	Candidates int `json:"candidates"`
	Appended   int `json:"appended"`
	Duplicates int `json:"duplicates"`
	NoMatch    int `json:"no_match"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// TokenFilter drives list/count queries on the read side.
type TokenFilter struct {
	Source         Source
	LaunchedBefore *time.Time
	SortBy         string
	SortDesc       bool
	Skip           int
	Limit          int
}

// SortFields maps accepted API sort keys to storage columns.
var SortFields = map[string]string{
	"marketCap":        "market_cap",
	"price":            "price",
	"volume24h":        "volume_24h",
	"percentChange24h": "percent_change_24h",
	"rank":             "rank",
	"launchDate":       "launch_date",
	"riskLevel":        "risk_level",
	"symbol":           "symbol",
}
