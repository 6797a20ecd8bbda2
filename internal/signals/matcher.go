package signals

import (
	"fmt"
	"math"
	"strings"
	"time"

	"coinchart/internal/domain"
)

const (
	DefaultStrategy   = "default"
	DefaultConfidence = 75
	DedupWindow       = time.Hour
)

// Outcome reports what Apply did to a token.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeNoMatch
	OutcomeDuplicate
	OutcomeAppended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeAppended:
		return "appended"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Matcher attaches feed signals to tokens.
type Matcher struct {
	now        func() time.Time
	maxHistory int
}

func NewMatcher() *Matcher {
	return &Matcher{now: time.Now, maxHistory: domain.MaxSignalsPerToken}
}

// WithClock sets the time source used for signal timestamps and dedup.
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// FindMatch returns the first feed signal whose ticker matches symbol.
func FindMatch(symbol string, feed []domain.FeedSignal) (domain.FeedSignal, bool) {
	symbol = strings.ToUpper(symbol)
	for _, s := range feed {
		if s.Description == "" {
			continue
		}
		raw, ok := ExtractTicker(s.Description)
		if !ok {
			continue
		}
		if SymbolsMatch(symbol, NormalizeTicker(raw)) {
			return s, true
		}
	}
	return domain.FeedSignal{}, false
}

// Apply matches the feed against token and appends at most one signal to
// token.Signals. The caller persists the token when the outcome is OutcomeAppended.
func (m *Matcher) Apply(token *domain.Token, feed []domain.FeedSignal) (Outcome, error) {
	if token == nil || strings.TrimSpace(token.Symbol) == "" {
		return OutcomeSkipped, domain.ErrInvalidToken
	}
	if IsNumericSymbol(token.Symbol) {
		return OutcomeSkipped, nil
	}

	match, ok := FindMatch(token.Symbol, feed)
	if !ok {
		return OutcomeNoMatch, nil
	}

	price, ok := ExtractPrice(match.Description)
	if !ok {
		price = token.Price
	}

	now := m.now()
	cutoff := now.Add(-DedupWindow)
	for _, existing := range token.Signals {
		if existing.Description == match.Description && existing.Timestamp.After(cutoff) {
			return OutcomeDuplicate, nil
		}
	}

	risks := match.Risks
	if risks == nil {
		risks = []string{}
	}
	token.Signals = append(token.Signals, domain.Signal{
		Strategy:    DefaultStrategy,
		Timestamp:   now,
		Type:        domain.SignalBuy,
		Price:       price,
		Confidence:  confidence(match.Confidence),
		Description: match.Description,
		Risks:       risks,
	})

	if over := len(token.Signals) - m.maxHistory; over > 0 {
		token.Signals = append([]domain.Signal(nil), token.Signals[over:]...)
	}
	return OutcomeAppended, nil
}

// confidence treats a missing or zero value as the default and clamps to 0..100.
func confidence(v *float64) int {
	if v == nil || *v == 0 || math.IsNaN(*v) {
		return DefaultConfidence
	}
	c := int(math.Round(*v))
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
