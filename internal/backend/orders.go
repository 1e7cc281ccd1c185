package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/checkout"
)

var _ checkout.Gateway = (*Orders)(nil)

// Orders submits and tracks orders on the backend.
type Orders struct {
	c *Client
}

// Orders returns the order view of the client.
func (c *Client) Orders() *Orders {
	return &Orders{c: c}
}

// CreateOrder posts the payload to /api/v1/orders.
//
// A 401 maps to checkout.ErrSessionExpired and a {"success":false} body to
// *checkout.RejectedError carrying the backend message.
func (o *Orders) CreateOrder(ctx context.Context, token string, p checkout.Payload) (*checkout.Order, error) {
	status, body, err := o.c.do(ctx, http.MethodPost, "/api/v1/orders", token, EncodePayload(p))
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized:
		return nil, checkout.ErrSessionExpired
	case status >= http.StatusInternalServerError:
		return nil, failure(status, body)
	}

	res, err := decodeEnvelope(body, decodeOrder)
	switch {
	case err == nil && !res.OK:
		return nil, &checkout.RejectedError{Message: res.Message}
	case !isSuccess(status):
		return nil, failure(status, body)
	case err != nil:
		return nil, malformed(status, errors.Wrap(err, "create order"))
	}
	return &res.Data, nil
}

// TrackOrder fetches /api/v1/orders/track/{id}.
func (o *Orders) TrackOrder(ctx context.Context, token, orderID string) (*checkout.Order, error) {
	status, body, err := o.c.do(ctx, http.MethodGet, "/api/v1/orders/track/"+url.PathEscape(orderID), token, nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusUnauthorized:
		return nil, checkout.ErrSessionExpired
	case http.StatusNotFound:
		return nil, checkout.ErrOrderNotFound
	}
	if !isSuccess(status) {
		return nil, failure(status, body)
	}

	res, err := decodeEnvelope(body, decodeOrder)
	if err != nil {
		return nil, malformed(status, errors.Wrapf(err, "track order %s", orderID))
	}
	if !res.OK {
		return nil, checkout.ErrOrderNotFound
	}
	return &res.Data, nil
}

// ListOrders fetches /api/v1/orders/all-orders.
func (o *Orders) ListOrders(ctx context.Context, token string) ([]checkout.Order, error) {
	status, body, err := o.c.do(ctx, http.MethodGet, "/api/v1/orders/all-orders", token, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, checkout.ErrSessionExpired
	}
	if !isSuccess(status) {
		return nil, failure(status, body)
	}

	res, err := decodeEnvelope(body, decodeOrders)
	if err != nil {
		return nil, malformed(status, errors.Wrap(err, "list orders"))
	}
	if !res.OK {
		return nil, &Error{Status: status, Message: res.Message}
	}
	return res.Data, nil
}

// EncodePayload renders the order-creation body.
func EncodePayload(p checkout.Payload) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range p.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(item.ID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("price")
		cart.EncodeDecimal(e, item.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total_price")
	cart.EncodeDecimal(e, p.TotalPrice)
	e.FieldStart("delivery_address")
	e.Str(p.DeliveryAddress)
	e.FieldStart("provider_id")
	e.Str(p.ProviderID)
	e.FieldStart("payment_method")
	e.Str(string(p.PaymentMethod))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func decodeOrders(d *jx.Decoder) ([]checkout.Order, error) {
	var orders []checkout.Order
	if d.Next() == jx.Null {
		return orders, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		if err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	})
	return orders, err
}

func decodeOrder(d *jx.Decoder) (checkout.Order, error) {
	var o checkout.Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "status":
			var s string
			s, err = decodeOptStr(d)
			o.Status = checkout.OrderStatus(s)
		case "total_price":
			o.TotalPrice, err = cart.DecodeDecimal(d)
		case "delivery_address":
			o.DeliveryAddress, err = decodeOptStr(d)
		case "provider":
			// The backend spells the field "resturant_name".
			o.ProviderName, err = decodeObjectName(d, "resturant_name")
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeOrderItem(d)
				if err != nil {
					return err
				}
				o.Items = append(o.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return o, err
	}
	if o.ID == "" {
		return o, errors.New("order without id")
	}
	return o, nil
}

func decodeOrderItem(d *jx.Decoder) (checkout.OrderItem, error) {
	var item checkout.OrderItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			item.ID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
		case "price":
			item.Price, err = cart.DecodeDecimal(d)
		case "meal":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "name":
					item.MealName, err = decodeOptStr(d)
				case "image_url":
					item.ImageURL, err = decodeOptStr(d)
				default:
					return d.Skip()
				}
				return err
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return item, err
}
