package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

const productColumns = `id, name, code, price, model, url`

func (c *PostgresCatalog) GetAll(ctx context.Context) ([]Product, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (c *PostgresCatalog) GetByID(ctx context.Context, id string) (Product, error) {
	var p Product
	err := c.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.Model, &p.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (c *PostgresCatalog) GetByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products by ids: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (c *PostgresCatalog) Create(ctx context.Context, p Product) (Product, error) {
	p.ID = uuid.NewString()
	_, err := c.pool.Exec(ctx, `
		INSERT INTO products (id, name, code, price, model, url)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Code, p.Price, p.Model, p.URL,
	)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (c *PostgresCatalog) Update(ctx context.Context, id string, p Product) (Product, error) {
	p.ID = id
	tag, err := c.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, code = $3, price = $4, model = $5, url = $6
		WHERE id = $1`,
		id, p.Name, p.Code, p.Price, p.Model, p.URL,
	)
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (c *PostgresCatalog) Delete(ctx context.Context, id string) (Product, error) {
	var p Product
	err := c.pool.QueryRow(ctx, `
		DELETE FROM products WHERE id = $1
		RETURNING `+productColumns, id).
		Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.Model, &p.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("delete product: %w", err)
	}
	return p, nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.Model, &p.URL); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
