package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coinchart/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tokenColumns = `id, symbol, source, name, price, market_cap, volume_24h, percent_change_24h,
	rank, launch_date, risk_level, contract, chain, signals, created_at, updated_at`

const defaultSearchLimit = 50

type TokenRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewTokenRepository(pool PgxPool, tracer trace.Tracer) *TokenRepository {
	return &TokenRepository{pool: pool, tracer: tracer}
}

func (r *TokenRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "token-repo.run-migrations")
	defer span.End()

	if _, err := r.pool.Exec(ctx, createTokensTable); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, createUsersTable)
	return err
}

// UpsertToken inserts or fully replaces the row keyed by (symbol, source).
// The signals column is never written here.
func (r *TokenRepository) UpsertToken(ctx context.Context, rec domain.TokenRecord) (int64, error) {
	_, span := r.tracer.Start(ctx, "token-repo.upsert-token")
	defer span.End()

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tokens (symbol, source, name, price, market_cap, volume_24h, percent_change_24h,
		                     rank, launch_date, risk_level, contract, chain)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (symbol, source) DO UPDATE SET
		     name = EXCLUDED.name,
		     price = EXCLUDED.price,
		     market_cap = EXCLUDED.market_cap,
		     volume_24h = EXCLUDED.volume_24h,
		     percent_change_24h = EXCLUDED.percent_change_24h,
		     rank = EXCLUDED.rank,
		     launch_date = EXCLUDED.launch_date,
		     risk_level = EXCLUDED.risk_level,
		     contract = EXCLUDED.contract,
		     chain = EXCLUDED.chain,
		     updated_at = NOW()
		 RETURNING id`,
		rec.Symbol, string(rec.Source), rec.Name, rec.Price, rec.MarketCap, rec.Volume24h, rec.PercentChange24h,
		rec.Rank, rec.LaunchDate, rec.RiskLevel, rec.Contract, rec.Chain,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert %s/%s: %w", rec.Source, rec.Symbol, err)
	}
	return id, nil
}

// ListTokensBySource returns every row of a source by market cap, largest
// first, ties broken by symbol.
func (r *TokenRepository) ListTokensBySource(ctx context.Context, source domain.Source) ([]domain.Token, error) {
	_, span := r.tracer.Start(ctx, "token-repo.list-by-source")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+`
		 FROM tokens
		 WHERE source = $1
		 ORDER BY market_cap DESC, symbol ASC`,
		string(source),
	)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func (r *TokenRepository) UpdateRanks(ctx context.Context, ranks []domain.RankAssignment) error {
	if len(ranks) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "token-repo.update-ranks")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(ranks)))

	batch := &pgx.Batch{}
	for _, ra := range ranks {
		batch.Queue(`UPDATE tokens SET rank = $2 WHERE id = $1`, ra.ID, ra.Rank)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range ranks {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// FindSignalCandidates returns rows of source whose upper-cased symbol is in
// tickers, excluding leveraged UP/DOWN tokens.
func (r *TokenRepository) FindSignalCandidates(ctx context.Context, source domain.Source, tickers []string) ([]domain.Token, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	_, span := r.tracer.Start(ctx, "token-repo.find-signal-candidates")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+`
		 FROM tokens
		 WHERE source = $1
		   AND upper(symbol) = ANY($2)
		   AND symbol !~ '(UP|DOWN)$'
		 ORDER BY market_cap DESC, symbol ASC`,
		string(source), tickers,
	)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

// SaveSignals replaces the signal history of one row.
func (r *TokenRepository) SaveSignals(ctx context.Context, id int64, signals []domain.Signal) error {
	_, span := r.tracer.Start(ctx, "token-repo.save-signals")
	defer span.End()

	if signals == nil {
		signals = []domain.Signal{}
	}
	payload, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}

	var last *time.Time
	if n := len(signals); n > 0 {
		ts := signals[n-1].Timestamp
		last = &ts
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE tokens SET signals = $2, last_signal_at = $3, updated_at = NOW() WHERE id = $1`,
		id, payload, last,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TokenRepository) FindTokens(ctx context.Context, filter domain.TokenFilter) ([]domain.Token, error) {
	_, span := r.tracer.Start(ctx, "token-repo.find-tokens")
	defer span.End()

	sql, args := buildFindTokensQuery(filter)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func (r *TokenRepository) CountTokens(ctx context.Context, filter domain.TokenFilter) (int, error) {
	_, span := r.tracer.Start(ctx, "token-repo.count-tokens")
	defer span.End()

	where, args := tokenFilterClause(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetToken looks a symbol up case-insensitively. With an empty source the
// largest-cap row across sources wins.
func (r *TokenRepository) GetToken(ctx context.Context, symbol string, source domain.Source) (*domain.Token, error) {
	_, span := r.tracer.Start(ctx, "token-repo.get-token")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+`
		 FROM tokens
		 WHERE upper(symbol) = upper($1) AND ($2 = '' OR source = $2)
		 ORDER BY market_cap DESC, source ASC
		 LIMIT 1`,
		symbol, string(source),
	)
	if err != nil {
		return nil, err
	}
	tokens, err := collectTokens(rows)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, domain.ErrNotFound
	}
	return &tokens[0], nil
}

// SearchTokens matches query as a case-insensitive substring of the symbol.
func (r *TokenRepository) SearchTokens(ctx context.Context, query string, limit int) ([]domain.Token, error) {
	_, span := r.tracer.Start(ctx, "token-repo.search-tokens")
	defer span.End()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+`
		 FROM tokens
		 WHERE symbol ILIKE '%' || $1 || '%'
		 ORDER BY market_cap DESC, symbol ASC
		 LIMIT $2`,
		escapeLike(query), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

// ListSignalTokens returns rows that carry signals, most recent signal
// first. An empty strategy matches any. limit <= 0 means no limit.
func (r *TokenRepository) ListSignalTokens(ctx context.Context, strategy string, limit int) ([]domain.Token, error) {
	_, span := r.tracer.Start(ctx, "token-repo.list-signal-tokens")
	defer span.End()

	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+`
		 FROM tokens
		 WHERE last_signal_at IS NOT NULL
		   AND ($1 = '' OR signals @> jsonb_build_array(jsonb_build_object('strategy', $1::text)))
		 ORDER BY last_signal_at DESC, symbol ASC
		 LIMIT $2`,
		strategy, lim,
	)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func buildFindTokensQuery(f domain.TokenFilter) (string, []any) {
	where, args := tokenFilterClause(f)

	column, ok := domain.SortFields[f.SortBy]
	if !ok {
		column = "market_cap"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + tokenColumns + ` FROM tokens`)
	sb.WriteString(where)
	fmt.Fprintf(&sb, " ORDER BY %s %s", column, dir)
	if column != "symbol" {
		sb.WriteString(", symbol ASC")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Skip > 0 {
		args = append(args, f.Skip)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

func tokenFilterClause(f domain.TokenFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Source != "" {
		args = append(args, string(f.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.LaunchedBefore != nil {
		args = append(args, *f.LaunchedBefore)
		conds = append(conds, fmt.Sprintf("launch_date <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func collectTokens(rows pgx.Rows) ([]domain.Token, error) {
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func scanToken(row pgx.Row) (domain.Token, error) {
	var (
		t       domain.Token
		source  string
		signals []byte
	)
	err := row.Scan(&t.ID, &t.Symbol, &source, &t.Name, &t.Price, &t.MarketCap, &t.Volume24h, &t.PercentChange24h,
		&t.Rank, &t.LaunchDate, &t.RiskLevel, &t.Contract, &t.Chain, &signals, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, domain.ErrNotFound
		}
		return t, err
	}
	t.Source = domain.Source(source)
	t.Signals = []domain.Signal{}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &t.Signals); err != nil {
			return t, fmt.Errorf("decode signals for %s: %w", t.Symbol, err)
		}
	}
	return t, nil
}
