package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/catalog"
)

var _ catalog.Repository = (*Meals)(nil)

// Meals reads the meal catalog from the backend.
type Meals struct {
	c *Client
}

// Meals returns the catalog view of the client.
func (c *Client) Meals() *Meals {
	return &Meals{c: c}
}

// List returns every meal the backend offers.
func (m *Meals) List(ctx context.Context) ([]catalog.Meal, error) {
	status, body, err := m.c.do(ctx, http.MethodGet, "/api/v1/meals", "", nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, failure(status, body)
	}

	res, err := decodeEnvelope(body, decodeMeals)
	if err != nil {
		return nil, malformed(status, errors.Wrap(err, "list meals"))
	}
	if !res.OK {
		return nil, &Error{Status: status, Message: res.Message}
	}
	return res.Data, nil
}

// Get returns a single meal, or catalog.ErrNotFound. Backends without a
// single-meal route answer 404 or 405; the meal is then looked up in List.
func (m *Meals) Get(ctx context.Context, id string) (*catalog.Meal, error) {
	status, body, err := m.c.do(ctx, http.MethodGet, "/api/v1/meals/"+url.PathEscape(id), "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		return m.find(ctx, id)
	}
	if !isSuccess(status) {
		return nil, failure(status, body)
	}

	res, err := decodeEnvelope(body, decodeMeal)
	if err != nil {
		return nil, malformed(status, errors.Wrapf(err, "get meal %s", id))
	}
	if !res.OK {
		return nil, catalog.ErrNotFound
	}
	return &res.Data, nil
}

func (m *Meals) find(ctx context.Context, id string) (*catalog.Meal, error) {
	meals, err := m.List(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "find meal %s", id)
	}
	for i := range meals {
		if meals[i].ID == id {
			return &meals[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func decodeMeals(d *jx.Decoder) ([]catalog.Meal, error) {
	var meals []catalog.Meal
	if d.Next() == jx.Null {
		return meals, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		m, err := decodeMeal(d)
		if err != nil {
			return err
		}
		meals = append(meals, m)
		return nil
	})
	return meals, err
}

func decodeMeal(d *jx.Decoder) (catalog.Meal, error) {
	var m catalog.Meal
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			m.ID, err = d.Str()
		case "name":
			m.Name, err = decodeOptStr(d)
		case "description":
			m.Description, err = decodeOptStr(d)
		case "price":
			m.Price, err = cart.DecodeDecimal(d)
		case "image_url":
			m.ImageURL, err = decodeOptStr(d)
		case "image":
			// Older meal records use "image"; image_url wins when both are set.
			var v string
			v, err = decodeOptStr(d)
			if m.ImageURL == "" {
				m.ImageURL = v
			}
		case "provider_id":
			m.ProviderID, err = decodeOptStr(d)
		case "category":
			m.Category, err = decodeObjectName(d, "name")
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return m, err
	}
	if m.ID == "" {
		return m, errors.New("meal without id")
	}
	return m, nil
}
