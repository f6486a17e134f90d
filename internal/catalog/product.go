package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const DefaultCategory = "Uncategorized"

const (
	MsgNotFound      = "Product not found"
	MsgMissingFields = "Missing required fields: name, price, stock"
	MsgDeleted       = "Product deleted successfully"
)

var ErrNotFound = errors.New("product not found")

// ValidationError is returned for client input the store refuses. Msg is safe to
// show to the caller as is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Stock    int64   `json:"stock"`
	Category string  `json:"category"`
}

// Fields holds client-supplied product attributes. A nil field was not sent.
type Fields struct {
	Name     *string  `json:"name" validate:"omitempty,min=1"`
	Price    *float64 `json:"price" validate:"omitempty,gte=0"`
	Stock    *int64   `json:"stock" validate:"omitempty,gte=0"`
	Category *string  `json:"category"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCreate treats an empty name the same as a missing one. Zero price and
// zero stock are valid.
func (f Fields) validateCreate() error {
	if f.Name == nil || *f.Name == "" || f.Price == nil || f.Stock == nil {
		return &ValidationError{Msg: MsgMissingFields}
	}
	return f.validate()
}

func (f Fields) validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "gte":
		return invalidf("Invalid field %s: must be greater than or equal to %s", fe.Field(), fe.Param())
	case "min":
		return invalidf("Invalid field %s: must not be empty", fe.Field())
	default:
		return invalidf("Invalid field %s", fe.Field())
	}
}

func (p *Product) apply(f Fields) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Price != nil {
		p.Price = *f.Price
	}
	if f.Stock != nil {
		p.Stock = *f.Stock
	}
	if f.Category != nil && *f.Category != "" {
		p.Category = *f.Category
	}
}

// newProduct fills in DefaultCategory when none was given. On update an empty
// category leaves the current one untouched.
func newProduct(id int64, f Fields) Product {
	p := Product{ID: id, Category: DefaultCategory}
	p.apply(f)
	return p
}

// Matches reports whether q is a case-insensitive substring of the name or the
// category. An empty q matches everything.
func (p Product) Matches(q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Category), q)
}

func SeedProducts() []Product {
	return []Product{
		{ID: 1, Name: "Gaming Laptop", Price: 1299.99, Stock: 10, Category: "Electronics"},
		{ID: 2, Name: "Wireless Mouse", Price: 29.99, Stock: 50, Category: "Accessories"},
		{ID: 3, Name: "Mechanical Keyboard", Price: 89.99, Stock: 30, Category: "Accessories"},
		{ID: 4, Name: "USB-C Hub", Price: 49.99, Stock: 25, Category: "Accessories"},
		{ID: 5, Name: "4K Monitor", Price: 399.99, Stock: 15, Category: "Electronics"},
	}
}
