package repository

import (
	"context"
	"errors"
	"strings"

	"coinchart/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// UserRepository reads wallet subscriptions. Writes belong to billing.
type UserRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewUserRepository(pool PgxPool, tracer trace.Tracer) *UserRepository {
	return &UserRepository{pool: pool, tracer: tracer}
}

func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	_, span := r.tracer.Start(ctx, "user-repo.get-by-wallet")
	defer span.End()

	var (
		u      domain.User
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT wallet_address, subscription_status, subscription_expiry, subscription_id
		 FROM users
		 WHERE wallet_address = $1`,
		strings.TrimSpace(wallet),
	).Scan(&u.WalletAddress, &status, &u.Subscription.ExpiryDate, &u.Subscription.SubscriptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Subscription.Status = domain.SubscriptionStatus(status)
	return &u, nil
}
