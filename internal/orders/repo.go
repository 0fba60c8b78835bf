package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateSession means an order for this session id already
	// exists. Callers treat it as success, not failure: it is the
	// storage layer serializing an at-least-once webhook delivery.
	ErrDuplicateSession = errors.New("order already exists for session")

	ErrNotFound      = errors.New("order not found")
	ErrBadTransition = errors.New("status transition not allowed")
)

type Repo struct{ DB *pgxpool.Pool }

// InsertOrder writes the order row keyed by the processor session id.
// ON CONFLICT DO NOTHING turns a concurrent duplicate delivery into
// ErrDuplicateSession instead of a constraint violation, without
// serializing unrelated sessions.
func (r *Repo) InsertOrder(ctx context.Context, o Order) error {
	md, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	ct, err := r.DB.Exec(ctx, `
		INSERT INTO orders(
			id, stripe_session_id, user_id, email, amount, status,
			customer_name, phone, address_line1, address_line2,
			city, state, postal_code, country, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (stripe_session_id) DO NOTHING`,
		o.ID, o.SessionID, o.UserID, o.Email, o.Amount, string(o.Status),
		o.CustomerName, o.Phone, o.AddressLine1, o.AddressLine2,
		o.City, o.State, o.PostalCode, o.Country, md,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicateSession
	}
	return nil
}

// InsertLineItems writes the fulfillment-time product snapshot in one
// transaction so a partially materialized order never shows up in
// listings.
func (r *Repo) InsertLineItems(ctx context.Context, orderID string, items []LineItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4)`,
			orderID, it.ProductID, it.Quantity, it.UnitPrice,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListByEmail(ctx context.Context, email string) ([]OrderWithItems, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, stripe_session_id, user_id, email, amount, status,
		       customer_name, phone, address_line1, address_line2,
		       city, state, postal_code, country, created_at, updated_at
		FROM orders WHERE email=$1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderWithItems
	var ids []string
	byID := map[string]int{}
	for rows.Next() {
		var o Order
		var s string
		if err := rows.Scan(&o.ID, &o.SessionID, &o.UserID, &o.Email, &o.Amount, &s,
			&o.CustomerName, &o.Phone, &o.AddressLine1, &o.AddressLine2,
			&o.City, &o.State, &o.PostalCode, &o.Country, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = Status(s)
		byID[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, OrderWithItems{Order: o, Items: []LineItem{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	itemRows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it LineItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		if idx, ok := byID[it.OrderID]; ok {
			out[idx].Items = append(out[idx].Items, it)
		}
	}
	return out, itemRows.Err()
}

// UpdateStatus applies a guarded status transition and reports the
// status the order moved from. The current row is locked so two racing
// admin updates cannot both pass the guard.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) (Order, Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, "", ErrNotFound
	}
	if err != nil {
		return Order{}, "", err
	}
	from := Status(cur)
	if !CanTransition(from, to) {
		return Order{}, "", fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur, to)
	}

	var o Order
	var s string
	err = tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
		RETURNING id, stripe_session_id, user_id, email, amount, status,
		          customer_name, phone, address_line1, address_line2,
		          city, state, postal_code, country, created_at, updated_at`,
		orderID, string(to),
	).Scan(&o.ID, &o.SessionID, &o.UserID, &o.Email, &o.Amount, &s,
		&o.CustomerName, &o.Phone, &o.AddressLine1, &o.AddressLine2,
		&o.City, &o.State, &o.PostalCode, &o.Country, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, "", err
	}
	o.Status = Status(s)

	if err := tx.Commit(ctx); err != nil {
		return Order{}, "", err
	}
	return o, from, nil
}
