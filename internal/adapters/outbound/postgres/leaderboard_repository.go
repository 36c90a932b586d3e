package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.LeaderboardRepository = (*LeaderboardRepository)(nil)

// LeaderboardRepository stores leaderboard scores and ranks.
type LeaderboardRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLeaderboardRepository creates a leaderboard repository.
func NewLeaderboardRepository(pool *pgxpool.Pool, logger *slog.Logger) (*LeaderboardRepository, error) {
	if pool == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardRepository{pool: pool, logger: logger.With("component", "postgres-leaderboard-repository")}, nil
}

func (r *LeaderboardRepository) HoldingsValue(ctx context.Context, userID string) (decimal.Decimal, error) {
	var total string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(h.quantity * a.current_price), 0)::text
		 FROM portfolio_holdings h
		 JOIN portfolios p ON p.portfolio_id = h.portfolio_id
		 JOIN assets a ON a.asset_id = h.asset_id
		 WHERE p.user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("valuing holdings of %s: %w", userID, mapError(err))
	}
	return parseNumeric("holdings_value", total)
}

// UpsertScore stores the score and badge. An existing rank is left alone
// until the next SaveRanks.
func (r *LeaderboardRepository) UpsertScore(ctx context.Context, entry *entity.LeaderboardEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO leaderboard (user_id, score, badge, holdings_value, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			score = EXCLUDED.score,
			badge = EXCLUDED.badge,
			holdings_value = EXCLUDED.holdings_value,
			updated_at = EXCLUDED.updated_at`,
		entry.UserID, entry.Score, string(entry.Badge), numeric(entry.HoldingsValue),
	)
	if err != nil {
		return fmt.Errorf("upserting score of %s: %w", entry.UserID, mapError(err))
	}
	return nil
}

func (r *LeaderboardRepository) ListScores(ctx context.Context) ([]*entity.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, score, badge, rank, holdings_value::text, updated_at FROM leaderboard`)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", mapError(err))
	}
	defer rows.Close()

	var entries []*entity.LeaderboardEntry
	for rows.Next() {
		var (
			e     entity.LeaderboardEntry
			badge string
			value string
		)
		if err := rows.Scan(&e.UserID, &e.Score, &badge, &e.Rank, &value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		e.Badge = entity.Badge(badge)
		if e.HoldingsValue, err = parseNumeric("holdings_value", value); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scores: %w", mapError(err))
	}
	return entries, nil
}

// SaveRanks writes all ranks in one batch.
func (r *LeaderboardRepository) SaveRanks(ctx context.Context, entries []*entity.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`UPDATE leaderboard SET rank = $1 WHERE user_id = $2`, e.Rank, e.UserID)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving %d ranks: %w", len(entries), mapError(err))
	}
	r.logger.Debug("ranks saved", "count", len(entries))
	return nil
}
