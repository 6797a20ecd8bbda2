package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"coinchart/internal/domain"
	"coinchart/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errFeedNotArray = errors.New("signal feed is not a JSON array")

// SignalFeedProvider reads the /dex_signals feed hosted next to CookieFun.
type SignalFeedProvider struct {
	httpSource
	log *logger.Logger
}

func NewSignalFeedProvider(tracer trace.Tracer, opts Options) *SignalFeedProvider {
	return &SignalFeedProvider{
		httpSource: newHTTPSource("signals", cookieFunBaseURL, tracer, opts),
		log:        logger.Nop(),
	}
}

// WithLogger sets the logger used for dropped feed entries.
func (p *SignalFeedProvider) WithLogger(log *logger.Logger) *SignalFeedProvider {
	if log != nil {
		p.log = log
	}
	return p
}

// feedEntry keeps optional fields raw so a bad confidence or risk list
// does not cost the whole entry.
type feedEntry struct {
	Description json.RawMessage `json:"description"`
	Confidence  json.RawMessage `json:"confidence"`
	Risks       json.RawMessage `json:"risks"`
}

// FetchSignals returns feed entries in upstream order. Entries without a
// string description are dropped; malformed optional fields are cleared.
func (p *SignalFeedProvider) FetchSignals(ctx context.Context) ([]domain.FeedSignal, error) {
	ctx, span := p.tracer.Start(ctx, "signals.fetch-feed")
	defer span.End()

	body, err := p.doRequest(ctx, "/dex_signals", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch signal feed: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errFeedNotArray
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("parse signal feed: %w", err)
	}

	feed := make([]domain.FeedSignal, 0, len(raw))
	dropped := 0
	for i, item := range raw {
		s, reason := decodeFeedEntry(item)
		if reason != "" {
			dropped++
			p.log.Warn("signal feed entry dropped", logger.Int("index", i), logger.String("reason", reason))
			continue
		}
		feed = append(feed, s)
	}

	span.SetAttributes(attribute.Int("signals", len(feed)), attribute.Int("dropped", dropped))
	return feed, nil
}

func decodeFeedEntry(item json.RawMessage) (domain.FeedSignal, string) {
	var e feedEntry
	if err := json.Unmarshal(item, &e); err != nil {
		return domain.FeedSignal{}, "entry is not an object"
	}

	var desc string
	if err := json.Unmarshal(e.Description, &desc); err != nil {
		return domain.FeedSignal{}, "description is not a string"
	}
	if strings.TrimSpace(desc) == "" {
		return domain.FeedSignal{}, "empty description"
	}

	return domain.FeedSignal{
		Description: desc,
		Confidence:  feedConfidence(e.Confidence),
		Risks:       feedRisks(e.Risks),
	}, ""
}

// feedConfidence returns nil for anything but a JSON number.
func feedConfidence(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v float64
	if json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return &v
}

// feedRisks keeps the string elements of an array and ignores the rest.
func feedRisks(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, it := range items {
		var s string
		if len(it) > 0 && it[0] == '"' && json.Unmarshal(it, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}
