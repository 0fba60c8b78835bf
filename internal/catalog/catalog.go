// Package catalog is the read-only view of the product catalog the
// checkout pipeline consumes. Writes belong to the admin surface, which
// lives elsewhere.
package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Inventory   int             `json:"inventory"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Reader is the narrow interface the pricing gate and the fulfillment
// handler depend on.
type Reader interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error)
}

type Repo struct{ DB *pgxpool.Pool }

// GetProductsByIDs batch-reads the authoritative product records. IDs
// with no matching row are simply absent from the result; the caller
// decides whether that is fatal.
func (r *Repo) GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, title, COALESCE(description, ''), COALESCE(image, ''), price, inventory, created_at, updated_at
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Image, &p.Price, &p.Inventory, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
