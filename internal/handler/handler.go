// Package handler serves the cart JSON API over net/http.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/catalog"
	"github.com/xenking/food-cart/internal/domain/checkout"
)

// Carts is the cart store as seen by the HTTP layer.
type Carts interface {
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	Add(ctx context.Context, cartID string, item cart.LineItem) (*cart.Cart, error)
	Remove(ctx context.Context, cartID, productID string) (*cart.Cart, error)
	Decrement(ctx context.Context, cartID, productID string) (*cart.Cart, error)
	Clear(ctx context.Context, cartID string) error
	Total(ctx context.Context, cartID string) (decimal.Decimal, error)
}

var _ Carts = (*cart.Store)(nil)

// Handler holds the dependencies of the API endpoints.
type Handler struct {
	carts    Carts
	meals    catalog.Repository
	checkout *checkout.Service
	sessions *Sessions
}

// New creates a Handler.
func New(sessions *Sessions, carts Carts, meals catalog.Repository, svc *checkout.Service) *Handler {
	return &Handler{
		carts:    carts,
		meals:    meals,
		checkout: svc,
		sessions: sessions,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/meals", h.ListMeals)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("GET /api/cart/total", h.CartTotal)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.RemoveItem)
	mux.HandleFunc("POST /api/cart/items/{id}/decrement", h.DecrementItem)

	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.TrackOrder)
}
