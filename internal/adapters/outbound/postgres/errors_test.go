package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

func TestMapError(t *testing.T) {
	plain := errors.New("syntax error")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("acquire: %w", context.DeadlineExceeded), entity.ErrStoreUnavailable},
		{"connection exception", &pgconn.PgError{Code: "08006"}, entity.ErrStoreUnavailable},
		{"too many connections", &pgconn.PgError{Code: codeTooManyConnections}, entity.ErrStoreUnavailable},
		{"closed pool", errors.New("closed pool"), entity.ErrStoreUnavailable},
		{"serialization", &pgconn.PgError{Code: codeSerializationFailure}, entity.ErrConcurrentUpdate},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, entity.ErrConcurrentUpdate},
		{"check violation", &pgconn.PgError{Code: "23514"}, nil},
		{"other", plain, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.want == nil {
				if got != tt.err {
					t.Errorf("expected error to pass through unchanged, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
}
