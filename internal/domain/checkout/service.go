package checkout

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/catalog"
)

// Config holds the checkout defaults.
type Config struct {
	// DeliveryFee is added on top of the cart total.
	DeliveryFee decimal.Decimal
	// DefaultAddress is used when the request carries no delivery address.
	DefaultAddress string
}

// Request holds the caller-supplied checkout input.
type Request struct {
	DeliveryAddress string        `json:"delivery_address" validate:"max=512"`
	PaymentMethod   PaymentMethod `json:"payment_method" validate:"omitempty,oneof=CASH_ON_DELIVERY ONLINE"`
	Token           string        `json:"-"`
}

// Result holds the output of a successful checkout.
type Result struct {
	Order   *Order
	Payload Payload
	// CartCleared is false when the order was placed but the ordered lines
	// could not be taken off the cart afterwards.
	CartCleared bool
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "invalid checkout request: " + strings.Join(parts, "; ")
}

// Service runs the checkout flow.
type Service struct {
	carts    Carts
	orders   Gateway
	validate *validator.Validate
	cfg      Config
}

// NewService creates a checkout Service.
func NewService(cfg Config, carts Carts, orders Gateway) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		carts:    carts,
		orders:   orders,
		validate: v,
		cfg:      cfg,
	}
}

// Checkout builds the order payload from the cart, submits it and takes the
// ordered lines off the cart once the backend accepted the order. On any
// failure before that the cart is left untouched.
func (s *Service) Checkout(ctx context.Context, cartID string, req Request) (*Result, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	payload := s.BuildPayload(c.Items(), c.Total(), req)

	o, err := s.orders.CreateOrder(ctx, req.Token, payload)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	result := &Result{Order: o, Payload: payload, CartCleared: true}
	if err := s.takeOrdered(ctx, cartID, payload.Items); err != nil {
		zctx.From(ctx).Warn("Order placed but cart not cleared",
			zap.String("cart_id", cartID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		result.CartCleared = false
	}
	return result, nil
}

// takeOrdered subtracts the ordered quantities from the cart under the cart
// lock. Lines added while the order was in flight stay in the cart.
func (s *Service) takeOrdered(ctx context.Context, cartID string, ordered []PayloadItem) error {
	_, err := s.carts.Update(ctx, cartID, "checkout", func(c *cart.Cart) bool {
		changed := false
		for _, item := range ordered {
			changed = c.Subtract(item.ID, item.Quantity) || changed
		}
		return changed
	})
	return err
}

// Orders lists the caller's orders.
func (s *Service) Orders(ctx context.Context, token string) ([]Order, error) {
	orders, err := s.orders.ListOrders(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Track returns the current state of a placed order.
func (s *Service) Track(ctx context.Context, token, orderID string) (*Order, error) {
	o, err := s.orders.TrackOrder(ctx, token, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "track order")
	}
	return o, nil
}

// BuildPayload assembles the order-creation body. The provider is taken from
// the first line.
func (s *Service) BuildPayload(items []cart.LineItem, total decimal.Decimal, req Request) Payload {
	lines := make([]PayloadItem, len(items))
	for i, item := range items {
		lines[i] = PayloadItem{
			ID:       item.ID,
			Quantity: item.Quantity,
			Price:    item.Price,
		}
	}

	provider := catalog.DefaultProviderID
	if len(items) > 0 && items[0].ProviderID != "" {
		provider = items[0].ProviderID
	}

	address := strings.TrimSpace(req.DeliveryAddress)
	if address == "" {
		address = s.cfg.DefaultAddress
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentCashOnDelivery
	}

	return Payload{
		Items:           lines,
		TotalPrice:      total.Add(s.cfg.DeliveryFee),
		DeliveryAddress: address,
		ProviderID:      provider,
		PaymentMethod:   method,
	}
}

func (s *Service) validateRequest(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate request")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		switch fe.Tag() {
		case "max":
			fields[name] = "must be at most " + fe.Param() + " characters"
		case "oneof":
			fields[name] = "must be one of " + fe.Param()
		default:
			fields[name] = "failed " + fe.Tag() + " check"
		}
	}
	return &ValidationError{Fields: fields}
}
