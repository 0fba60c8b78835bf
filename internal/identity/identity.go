// Package identity resolves a paying email to an account id. The
// lookup is best effort: guest checkout is a valid end state, so a miss
// leaves the order's account reference null.
package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Resolver interface {
	// ResolveEmail returns the account id for email, or nil when no
	// account matches.
	ResolveEmail(ctx context.Context, email string) (*string, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) ResolveEmail(ctx context.Context, email string) (*string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM accounts WHERE email=$1`, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
