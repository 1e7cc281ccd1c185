// Package catalog describes the meals offered by food providers. The catalog
// itself is owned by the remote backend; this package only defines the read
// port the rest of the service depends on.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-cart/internal/domain/cart"
)

// DefaultProviderID is used for meals that do not name their provider.
const DefaultProviderID = "default_provider"

// ErrNotFound is returned when a requested meal does not exist.
var ErrNotFound = errors.New("meal not found")

// Meal is a catalog item available for ordering.
type Meal struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	ProviderID  string
	Category    string
}

// LineItem converts the meal into the record passed to the cart.
func (m Meal) LineItem() cart.LineItem {
	provider := m.ProviderID
	if provider == "" {
		provider = DefaultProviderID
	}
	return cart.LineItem{
		ID:         m.ID,
		Name:       m.Name,
		Price:      m.Price,
		ImageURL:   m.ImageURL,
		Quantity:   1,
		ProviderID: provider,
	}
}

// Repository defines read operations for the meal catalog.
type Repository interface {
	List(ctx context.Context) ([]Meal, error)
	Get(ctx context.Context, id string) (*Meal, error)
}
