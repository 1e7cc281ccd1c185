package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/catalog"
)

// cartFunc is a cart operation bound to the caller's cart id.
type cartFunc func(r *http.Request, cartID string) (*cart.Cart, error)

// serveCart resolves the cart id, runs fn and writes the resulting cart.
func (h *Handler) serveCart(w http.ResponseWriter, r *http.Request, fn cartFunc) {
	cartID, err := h.sessions.CartID(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := fn(r, cartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// GetCart returns the caller's cart with its total.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(r *http.Request, cartID string) (*cart.Cart, error) {
		return h.carts.Get(r.Context(), cartID)
	})
}

// AddItem adds one unit of a meal. The body is either {"id"} to look the
// meal up in the catalog, or a complete line item carrying its own price.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(r *http.Request, cartID string) (*cart.Cart, error) {
		body, err := readBody(r)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		req, err := decodeAddItem(body)
		if err != nil {
			return nil, err
		}

		item := req.item
		if !req.hasPrice {
			m, err := h.meals.Get(r.Context(), req.item.ID)
			if err != nil {
				return nil, err
			}
			item = m.LineItem()
		}
		return h.carts.Add(r.Context(), cartID, item)
	})
}

// RemoveItem deletes a line item whatever its quantity.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(r *http.Request, cartID string) (*cart.Cart, error) {
		return h.carts.Remove(r.Context(), cartID, r.PathValue("id"))
	})
}

// DecrementItem takes one unit off a line item, deleting it at zero.
func (h *Handler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(r *http.Request, cartID string) (*cart.Cart, error) {
		return h.carts.Decrement(r.Context(), cartID, r.PathValue("id"))
	})
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(r *http.Request, cartID string) (*cart.Cart, error) {
		if err := h.carts.Clear(r.Context(), cartID); err != nil {
			return nil, err
		}
		return cart.New(), nil
	})
}

// CartTotal returns {"total_price": n}.
func (h *Handler) CartTotal(w http.ResponseWriter, r *http.Request) {
	cartID, err := h.sessions.CartID(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	total, err := h.carts.Total(r.Context(), cartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("total_price")
		cart.EncodeDecimal(e, total)
		e.ObjEnd()
	})
}

type addItemRequest struct {
	item     cart.LineItem
	hasPrice bool
}

func decodeAddItem(body []byte) (addItemRequest, error) {
	var req addItemRequest
	if len(body) == 0 {
		return req, badRequest("request body is required")
	}

	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			req.item.ID, err = d.Str()
		case "name":
			req.item.Name, err = d.Str()
		case "price":
			req.item.Price, err = cart.DecodeDecimal(d)
			req.hasPrice = true
		case "image_url":
			req.item.ImageURL, err = d.Str()
		case "provider_id":
			req.item.ProviderID, err = d.Str()
		default:
			// quantity included: every add is exactly one unit.
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

	switch {
	case req.item.ID == "":
		return req, badRequest("id is required")
	case req.hasPrice && req.item.Price.LessThan(decimal.Zero):
		return req, badRequest("price must not be negative")
	case req.hasPrice && req.item.Name == "":
		return req, badRequest("name is required with price")
	}
	if req.item.ProviderID == "" {
		req.item.ProviderID = catalog.DefaultProviderID
	}
	return req, nil
}
