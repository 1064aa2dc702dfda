package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapPostgresError(t *testing.T) {
	connectErr := &pgconn.ConnectError{Config: &pgconn.Config{}}
	unknown := errors.New("something else")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil passes through", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("query: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"connect failure", connectErr, models.ErrStoreUnavailable},
		{"wrapped connect failure", fmt.Errorf("acquire: %w", connectErr), models.ErrStoreUnavailable},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, models.ErrBadRequest},
		{"not null violation", &pgconn.PgError{Code: "23502"}, models.ErrBadRequest},
		{"unknown passes through", unknown, unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapPostgresError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("MapPostgresError(%s): got %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
