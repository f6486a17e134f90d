package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a pgx-backed *sql.DB and checks the connection.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := withTimeout(ctx, pingTimeout, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
}

// Seed inserts products only when the table is empty.
func (s *PostgresStore) Seed(ctx context.Context, products []Product) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `LOCK TABLE products IN EXCLUSIVE MODE`); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products)`).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}

		for _, p := range products {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO products (id, name, price, stock, category)
				VALUES ($1, $2, $3, $4, $5)
			`, p.ID, p.Name, p.Price, p.Stock, p.Category)
			if err != nil {
				return fmt.Errorf("seed product %d: %w", p.ID, err)
			}
		}
		return tx.Commit()
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, s.db.PingContext)
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	out := make([]Product, 0, 16)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, price, stock, category
			FROM products
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Product, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, name, price, stock, category
			FROM products
			WHERE id = $1
		`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// Create takes an exclusive table lock so concurrent writers cannot compute the
// same max(id)+1.
func (s *PostgresStore) Create(ctx context.Context, f Fields) (Product, error) {
	if err := f.validateCreate(); err != nil {
		return Product{}, err
	}
	in := newProduct(0, f)

	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `LOCK TABLE products IN EXCLUSIVE MODE`); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO products (id, name, price, stock, category)
			SELECT COALESCE(MAX(id), 0) + 1, $1::text, $2::double precision, $3::bigint, $4::text
			FROM products
			RETURNING id, name, price, stock, category
		`, in.Name, in.Price, in.Stock, in.Category).
			Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, f Fields) (Product, error) {
	if err := f.validate(); err != nil {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return Product{}, gerr
		}
		return Product{}, err
	}

	category := f.Category
	if category != nil && *category == "" {
		category = nil
	}

	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			UPDATE products SET
				name     = COALESCE($2, name),
				price    = COALESCE($3, price),
				stock    = COALESCE($4, stock),
				category = COALESCE($5, category)
			WHERE id = $1
			RETURNING id, name, price, stock, category
		`, id, f.Name, f.Price, f.Stock, category).
			Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	var n int64

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
