package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UserDirectory reads the users table owned by the account service.
type UserDirectory struct {
	pg *Postgres
}

func NewUserDirectory(pg *Postgres) *UserDirectory {
	return &UserDirectory{pg: pg}
}

// ListActiveUserIDs returns the ids of every active account, ordered by id.
func (d *UserDirectory) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pg.pool.Query(ctx, `
		SELECT id::text
		FROM users
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return ids, nil
}
