package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/catalog"
	"github.com/xenking/food-cart/internal/domain/checkout"
)

// maxBodySize bounds request bodies.
const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes {"code":status,"message":msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// readBody returns the request body, or nil for an empty one.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodySize {
		return nil, errors.New("request body too large")
	}
	return data, nil
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range c.Items() {
		cart.EncodeLineItem(e, item)
	}
	e.ArrEnd()
	e.FieldStart("quantity")
	e.Int(c.Quantity())
	e.FieldStart("total_price")
	cart.EncodeDecimal(e, c.Total())
	e.ObjEnd()
}

func encodeMeal(e *jx.Encoder, m catalog.Meal) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(m.ID)
	e.FieldStart("name")
	e.Str(m.Name)
	e.FieldStart("description")
	e.Str(m.Description)
	e.FieldStart("price")
	cart.EncodeDecimal(e, m.Price)
	e.FieldStart("image_url")
	e.Str(m.ImageURL)
	e.FieldStart("provider_id")
	e.Str(m.ProviderID)
	if m.Category != "" {
		e.FieldStart("category")
		e.Str(m.Category)
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *checkout.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total_price")
	cart.EncodeDecimal(e, o.TotalPrice)
	e.FieldStart("delivery_address")
	e.Str(o.DeliveryAddress)
	if o.ProviderName != "" {
		e.FieldStart("provider_name")
		e.Str(o.ProviderName)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(item.ID)
		e.FieldStart("meal_name")
		e.Str(item.MealName)
		e.FieldStart("image_url")
		e.Str(item.ImageURL)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("price")
		cart.EncodeDecimal(e, item.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
