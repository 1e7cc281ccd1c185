package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/checkout"
)

// Checkout places an order for the caller's cart. The Authorization bearer
// token is forwarded to the backend.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	cartID, err := h.sessions.CartID(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, badRequest(err.Error()))
		return
	}
	req, err := decodeCheckout(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req.Token = bearerToken(r)

	res, err := h.checkout.Checkout(r.Context(), cartID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.FieldStart("total_price")
		cart.EncodeDecimal(e, res.Payload.TotalPrice)
		e.FieldStart("cart_cleared")
		e.Bool(res.CartCleared)
		e.ObjEnd()
	})
}

// TrackOrder returns the backend's current view of an order.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.Track(r.Context(), bearerToken(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders returns the caller's orders as known to the backend.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.checkout.Orders(r.Context(), bearerToken(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// decodeCheckout reads the optional checkout body.
func decodeCheckout(body []byte) (checkout.Request, error) {
	var req checkout.Request
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var (
			v   string
			err error
		)
		switch key {
		case "delivery_address":
			v, err = d.Str()
			req.DeliveryAddress = v
		case "payment_method":
			v, err = d.Str()
			req.PaymentMethod = checkout.PaymentMethod(v)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return req, badRequest("invalid json: " + err.Error())
	}
	return req, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
