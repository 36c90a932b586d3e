// Package postgres provides PostgreSQL implementations of the ledger ports.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// rollback rolls back the transaction and logs the error if it is not pgx.ErrTxClosed.
func rollback(ctx context.Context, tx pgx.Tx, logger *slog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error("failed to rollback transaction", "error", err)
	}
}

// numeric renders a decimal for a NUMERIC parameter. Postgres parses the
// string form without losing precision.
func numeric(d decimal.Decimal) string {
	return d.String()
}

// parseNumeric parses a NUMERIC column selected with a ::text cast.
func parseNumeric(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s %q: %w", column, s, err)
	}
	return d, nil
}

// parseOptionalNumeric parses a nullable NUMERIC column selected with a ::text cast.
func parseOptionalNumeric(column string, s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseNumeric(column, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// optionalNumeric renders a nullable NUMERIC parameter.
func optionalNumeric(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
