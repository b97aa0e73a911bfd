package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository is the order storage contract. Delete returns the removed
// order so its data can feed the ORDER_DELETED event.
type Repository interface {
	Put(ctx context.Context, o Order) error
	Get(ctx context.Context, email, orderID string) (Order, error)
	Delete(ctx context.Context, email, orderID string) (Order, error)
	QueryByEmail(ctx context.Context, email string) ([]Order, error)
	ScanAll(ctx context.Context) ([]Order, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Put(ctx context.Context, o Order) error {
	prods, err := json.Marshal(o.Products)
	if err != nil {
		return fmt.Errorf("marshal order products: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (email, id, created_at, shipping_type, carrier, payment, total_price, products)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.Email, o.ID, o.CreatedAt, o.Shipping.Type, o.Shipping.Carrier, o.Billing.Payment, o.Billing.TotalPrice, prods,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

const orderColumns = `email, id, created_at, shipping_type, carrier, payment, total_price, products`

func (r *PostgresRepository) Get(ctx context.Context, email, orderID string) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE email = $1 AND id = $2`, email, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, email, orderID string) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM orders
		WHERE email = $1 AND id = $2
		RETURNING `+orderColumns, email, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("delete order: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) QueryByEmail(ctx context.Context, email string) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE email = $1
		ORDER BY created_at`, email)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *PostgresRepository) ScanAll(ctx context.Context) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY email, created_at`)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var prods []byte
	err := row.Scan(&o.Email, &o.ID, &o.CreatedAt, &o.Shipping.Type, &o.Shipping.Carrier, &o.Billing.Payment, &o.Billing.TotalPrice, &prods)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(prods, &o.Products); err != nil {
		return Order{}, fmt.Errorf("unmarshal order products: %w", err)
	}
	return o, nil
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
