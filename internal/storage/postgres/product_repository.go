package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

const productColumns = `id, product_name, price, quantity, image`

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var err error
	if product.ID == 0 {
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO products (product_name, price, quantity, image)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, product.Name, product.Price, product.Quantity, product.Image).Scan(&product.ID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO products (id, product_name, price, quantity, image)
			VALUES ($1, $2, $3, $4, $5)
		`, product.ID, product.Name, product.Price, product.Quantity, product.Image)
	}
	if err != nil {
		if isCheckViolation(err) {
			return domain.Product{}, domain.ErrStockDeltaInvalid
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *productRepository) List(ctx context.Context, query string) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 = '' OR product_name ILIKE '%' || $1 || '%'
		ORDER BY id
	`, escapeLike(strings.TrimSpace(query)))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.Image); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

func (r *productRepository) Decrement(ctx context.Context, id int64, qty int) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return guardedDecrement(ctx, r.db, id, qty)
}

func (r *productRepository) Increment(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return domain.ErrStockDeltaInvalid
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET quantity = quantity + $1 WHERE id = $2`, qty, id)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for increment: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// guardedDecrement — единственная запись, уменьшающая остаток.
// applied=false означает, что строка не изменилась, потому что остатка не хватило.
func guardedDecrement(ctx context.Context, q queryer, id int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrStockDeltaInvalid
	}

	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $1
		WHERE id = $2 AND quantity >= $1
	`, qty, id)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for decrement: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return false, domain.ErrProductNotFound
	}
	return false, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ domain.ProductRepository = (*productRepository)(nil)
