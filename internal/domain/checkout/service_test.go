package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/storage/memory"
)

// --- Mock implementations ---

type mockCarts struct {
	cart      *cart.Cart
	getErr    error
	updateErr error
	updated   bool
}

func (m *mockCarts) Get(_ context.Context, _ string) (*cart.Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.cart, nil
}

func (m *mockCarts) Update(_ context.Context, _, _ string, fn func(c *cart.Cart) bool) (*cart.Cart, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updated = fn(m.cart)
	return m.cart, nil
}

type mockGateway struct {
	order     *Order
	orders    []Order
	err       error
	lastToken string
	last      *Payload
	// inFlight runs while the order is being created.
	inFlight func()
}

func (m *mockGateway) CreateOrder(_ context.Context, token string, p Payload) (*Order, error) {
	m.lastToken = token
	m.last = &p
	if m.inFlight != nil {
		m.inFlight()
	}
	return m.order, m.err
}

func (m *mockGateway) ListOrders(_ context.Context, token string) ([]Order, error) {
	m.lastToken = token
	if m.err != nil {
		return nil, m.err
	}
	return m.orders, nil
}

func (m *mockGateway) TrackOrder(_ context.Context, token, orderID string) (*Order, error) {
	m.lastToken = token
	if m.err != nil {
		return nil, m.err
	}
	if m.order == nil || m.order.ID != orderID {
		return nil, ErrOrderNotFound
	}
	return m.order, nil
}

// --- Helpers ---

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestCart() *cart.Cart {
	c := cart.New()
	c.Add(cart.LineItem{ID: "m1", Name: "Kacchi", Price: dec("250"), ProviderID: "p1"})
	c.Add(cart.LineItem{ID: "m1", Name: "Kacchi", Price: dec("250"), ProviderID: "p1"})
	c.Add(cart.LineItem{ID: "m2", Name: "Borhani", Price: dec("180"), ProviderID: "p2"})
	return c
}

func newTestService(carts Carts, gw Gateway) *Service {
	return NewService(Config{
		DeliveryFee:    dec("50"),
		DefaultAddress: "Default Address, Dhaka",
	}, carts, gw)
}

// --- Tests ---

func TestCheckout_Success(t *testing.T) {
	carts := &mockCarts{cart: newTestCart()}
	gw := &mockGateway{order: &Order{ID: "o-1", Status: StatusPlaced}}
	svc := newTestService(carts, gw)

	result, err := svc.Checkout(context.Background(), "cart-1", Request{Token: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "o-1", result.Order.ID)
	assert.True(t, result.CartCleared)
	assert.True(t, carts.updated)
	assert.True(t, carts.cart.IsEmpty())
	assert.Equal(t, "tok", gw.lastToken)

	p := gw.last
	require.NotNil(t, p)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "m1", p.Items[0].ID)
	assert.Equal(t, 2, p.Items[0].Quantity)
	assert.True(t, dec("250").Equal(p.Items[0].Price))
	assert.Equal(t, "m2", p.Items[1].ID)
	assert.True(t, dec("730").Equal(p.TotalPrice), "total %s", p.TotalPrice)
	assert.Equal(t, "p1", p.ProviderID)
	assert.Equal(t, PaymentCashOnDelivery, p.PaymentMethod)
	assert.Equal(t, "Default Address, Dhaka", p.DeliveryAddress)
}

func TestCheckout_RequestOverridesDefaults(t *testing.T) {
	gw := &mockGateway{order: &Order{ID: "o-1"}}
	svc := newTestService(&mockCarts{cart: newTestCart()}, gw)

	_, err := svc.Checkout(context.Background(), "cart-1", Request{
		DeliveryAddress: "  House 4, Road 2, Banani  ",
		PaymentMethod:   PaymentOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, "House 4, Road 2, Banani", gw.last.DeliveryAddress)
	assert.Equal(t, PaymentOnline, gw.last.PaymentMethod)
}

func TestCheckout_EmptyCart(t *testing.T) {
	gw := &mockGateway{}
	svc := newTestService(&mockCarts{cart: cart.New()}, gw)

	_, err := svc.Checkout(context.Background(), "cart-1", Request{})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Nil(t, gw.last, "nothing must be submitted")
}

func TestCheckout_GatewayErrorKeepsCart(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "session expired", err: ErrSessionExpired},
		{name: "rejected", err: &RejectedError{Message: "provider closed"}},
		{name: "transport", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carts := &mockCarts{cart: newTestCart()}
			svc := newTestService(carts, &mockGateway{err: tt.err})

			_, err := svc.Checkout(context.Background(), "cart-1", Request{})
			require.ErrorIs(t, err, tt.err)
			assert.False(t, carts.updated)
			assert.Equal(t, 2, carts.cart.Len())
		})
	}
}

func TestCheckout_RejectedErrorMessage(t *testing.T) {
	svc := newTestService(&mockCarts{cart: newTestCart()}, &mockGateway{err: &RejectedError{Message: "provider closed"}})

	_, err := svc.Checkout(context.Background(), "cart-1", Request{})

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "provider closed", rej.Message)
}

func TestCheckout_ClearFailureStillReturnsOrder(t *testing.T) {
	carts := &mockCarts{cart: newTestCart(), updateErr: errors.New("redis down")}
	svc := newTestService(carts, &mockGateway{order: &Order{ID: "o-9"}})

	result, err := svc.Checkout(context.Background(), "cart-1", Request{})
	require.NoError(t, err)
	assert.Equal(t, "o-9", result.Order.ID)
	assert.False(t, result.CartCleared)
}

func TestCheckout_CartLoadError(t *testing.T) {
	svc := newTestService(&mockCarts{getErr: errors.New("db down")}, &mockGateway{})

	_, err := svc.Checkout(context.Background(), "cart-1", Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get cart")
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantField string
	}{
		{
			name:      "unknown payment method",
			req:       Request{PaymentMethod: "BITCOIN"},
			wantField: "payment_method",
		},
		{
			name:      "address too long",
			req:       Request{DeliveryAddress: strings.Repeat("a", 513)},
			wantField: "delivery_address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			svc := newTestService(&mockCarts{cart: newTestCart()}, gw)

			_, err := svc.Checkout(context.Background(), "cart-1", tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.wantField)
			assert.Nil(t, gw.last)
		})
	}
}

func TestBuildPayload_DefaultProvider(t *testing.T) {
	svc := newTestService(&mockCarts{}, &mockGateway{})

	p := svc.BuildPayload([]cart.LineItem{{ID: "a", Price: dec("10"), Quantity: 1}}, dec("10"), Request{})
	assert.Equal(t, "default_provider", p.ProviderID)
	assert.True(t, dec("60").Equal(p.TotalPrice))
}

func TestTrack(t *testing.T) {
	gw := &mockGateway{order: &Order{ID: "o-1", Status: StatusShipped}}
	svc := newTestService(&mockCarts{}, gw)

	o, err := svc.Track(context.Background(), "tok", "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, "tok", gw.lastToken)

	_, err = svc.Track(context.Background(), "tok", "o-2")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCheckout_KeepsLinesAddedWhileOrdering(t *testing.T) {
	ctx := context.Background()
	store, err := cart.NewStore(memory.NewKV(), nil)
	require.NoError(t, err)

	kacchi := cart.LineItem{ID: "m1", Name: "Kacchi", Price: dec("250"), ProviderID: "p1"}
	borhani := cart.LineItem{ID: "m2", Name: "Borhani", Price: dec("80"), ProviderID: "p1"}
	_, err = store.Add(ctx, "cart-1", kacchi)
	require.NoError(t, err)

	gw := &mockGateway{order: &Order{ID: "o-1"}}
	gw.inFlight = func() {
		// Another tab adds a second unit and a new line before the backend answers.
		_, err := store.Add(ctx, "cart-1", kacchi)
		require.NoError(t, err)
		_, err = store.Add(ctx, "cart-1", borhani)
		require.NoError(t, err)
	}
	svc := newTestService(store, gw)

	result, err := svc.Checkout(ctx, "cart-1", Request{})
	require.NoError(t, err)
	assert.True(t, result.CartCleared)
	require.Len(t, gw.last.Items, 1)
	assert.Equal(t, 1, gw.last.Items[0].Quantity)

	c, err := store.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	got, ok := c.Item("m1")
	require.True(t, ok)
	assert.Equal(t, 1, got.Quantity)
	_, ok = c.Item("m2")
	assert.True(t, ok)
}

func TestOrders(t *testing.T) {
	gw := &mockGateway{orders: []Order{{ID: "o-1", Status: StatusCooking}, {ID: "o-2", Status: StatusPlaced}}}
	svc := newTestService(&mockCarts{}, gw)

	orders, err := svc.Orders(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, StatusCooking, orders[0].Status)
	assert.Equal(t, "tok", gw.lastToken)

	gw.err = ErrSessionExpired
	_, err = svc.Orders(context.Background(), "tok")
	require.ErrorIs(t, err, ErrSessionExpired)
}
