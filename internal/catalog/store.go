package catalog

import "context"

// Store owns the product collection. Get, Update and Delete return ErrNotFound
// for unknown ids; Create and Update return *ValidationError for bad fields.
type Store interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]Product, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, f Fields) (Product, error)
	Update(ctx context.Context, id int64, f Fields) (Product, error)
	Delete(ctx context.Context, id int64) error
}
