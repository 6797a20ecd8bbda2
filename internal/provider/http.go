package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 30 * time.Second

// Options configures an upstream client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	RequestBurst int
	RefillEvery  time.Duration
}

// httpSource carries what every upstream client needs.
type httpSource struct {
	name    string
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
	now     func() time.Time
}

func newHTTPSource(name, defaultBaseURL string, tracer trace.Tracer, opts Options) httpSource {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestBurst <= 0 {
		opts.RequestBurst = 5
	}
	if opts.RefillEvery <= 0 {
		opts.RefillEvery = 200 * time.Millisecond
	}
	return httpSource{
		name:    name,
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tracer:  tracer,
		limiter: NewRateLimiter(opts.RequestBurst, opts.RefillEvery),
		now:     time.Now,
	}
}

func (p *httpSource) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s API error %d: %s", p.name, resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

var errEmptyNumber = errors.New("empty number")

func parseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errEmptyNumber
	}
	return decimal.NewFromString(raw)
}
