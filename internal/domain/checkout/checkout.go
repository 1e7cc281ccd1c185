// Package checkout turns the contents of a cart into an order on the backend.
package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-cart/internal/domain/cart"
)

// PaymentMethod enumerates the payment options accepted by the backend.
type PaymentMethod string

const (
	// PaymentCashOnDelivery is paid to the courier.
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	// PaymentOnline is paid before dispatch.
	PaymentOnline PaymentMethod = "ONLINE"
)

// OrderStatus is the backend's order lifecycle state.
type OrderStatus string

const (
	StatusPlaced     OrderStatus = "PLACED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusCooking    OrderStatus = "COOKING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// Sentinel errors for checkout.
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrSessionExpired = errors.New("login session expired, please login again")
	ErrOrderNotFound  = errors.New("order not found")
)

// RejectedError is returned when the backend refuses the order and explains why.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "order rejected"
	}
	return fmt.Sprintf("order rejected: %s", e.Message)
}

// PayloadItem is one line of the order-creation payload.
type PayloadItem struct {
	ID       string
	Quantity int
	Price    decimal.Decimal
}

// Payload is the body sent to the backend's order-creation endpoint.
type Payload struct {
	Items           []PayloadItem
	TotalPrice      decimal.Decimal
	DeliveryAddress string
	ProviderID      string
	PaymentMethod   PaymentMethod
}

// Order is the backend's view of a placed order.
type Order struct {
	ID              string
	Status          OrderStatus
	TotalPrice      decimal.Decimal
	DeliveryAddress string
	ProviderName    string
	Items           []OrderItem
}

// OrderItem is a line of a placed order as reported by the backend.
type OrderItem struct {
	ID       string
	MealName string
	ImageURL string
	Quantity int
	Price    decimal.Decimal
}

// Gateway submits and looks up orders on the backend. Token is the caller's
// bearer token and is forwarded as is.
type Gateway interface {
	CreateOrder(ctx context.Context, token string, p Payload) (*Order, error)
	TrackOrder(ctx context.Context, token, orderID string) (*Order, error)
	// ListOrders returns the orders placed by the token's owner.
	ListOrders(ctx context.Context, token string) ([]Order, error)
}

// Carts is the part of the cart store checkout needs.
type Carts interface {
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	Update(ctx context.Context, cartID, op string, fn func(c *cart.Cart) bool) (*cart.Cart, error)
}
