//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestMeals_List(t *testing.T) {
	resp := doGet(t, "/api/meals")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	meals := decodeJSON[[]mealResponse](t, resp)
	if len(meals) != 3 {
		t.Fatalf("expected 3 meals, got %d", len(meals))
	}
	if meals[0].ID != "m1" || meals[0].Category != "Rice" {
		t.Errorf("unexpected first meal: %+v", meals[0])
	}
	if meals[2].ImageURL != "tehari.png" {
		t.Errorf("image fallback: got %q", meals[2].ImageURL)
	}
}

func TestCart_StartsEmpty(t *testing.T) {
	s := newSession(t)

	c := s.cart(http.MethodGet, "/api/cart", nil, http.StatusOK)
	if len(c.Items) != 0 || c.TotalPrice != 0 {
		t.Fatalf("expected empty cart, got %+v", c)
	}
}

func TestCart_AddFromCatalog(t *testing.T) {
	s := newSession(t)

	s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m1"}, http.StatusOK)
	c := s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m1"}, http.StatusOK)

	if len(c.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(c.Items))
	}
	if c.Items[0].Quantity != 2 {
		t.Errorf("quantity: got %d, want 2", c.Items[0].Quantity)
	}
	if c.Items[0].Name != "Kacchi Biryani" || c.Items[0].ProviderID != "p1" {
		t.Errorf("unexpected line: %+v", c.Items[0])
	}
	if c.TotalPrice != 500 {
		t.Errorf("total: got %v, want 500", c.TotalPrice)
	}
}

func TestCart_AddFullItem(t *testing.T) {
	s := newSession(t)

	c := s.cart(http.MethodPost, "/api/cart/items", map[string]any{
		"id":    "custom-1",
		"name":  "Fuchka",
		"price": 60,
	}, http.StatusOK)

	if len(c.Items) != 1 || c.Items[0].ProviderID != "default_provider" {
		t.Fatalf("unexpected cart: %+v", c)
	}
}

func TestCart_AddUnknownMeal(t *testing.T) {
	s := newSession(t)

	resp := s.do(http.MethodPost, "/api/cart/items", map[string]any{"id": "nope"}, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}

func TestCart_AddInvalid(t *testing.T) {
	s := newSession(t)

	resp := s.do(http.MethodPost, "/api/cart/items", map[string]any{"id": "x", "price": -1, "name": "Bad"}, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestCart_DecrementAndRemove(t *testing.T) {
	s := newSession(t)

	s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m1"}, http.StatusOK)
	s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m1"}, http.StatusOK)
	s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m2"}, http.StatusOK)

	c := s.cart(http.MethodPost, "/api/cart/items/m1/decrement", nil, http.StatusOK)
	if c.Items[0].Quantity != 1 {
		t.Fatalf("quantity after decrement: got %d, want 1", c.Items[0].Quantity)
	}

	c = s.cart(http.MethodPost, "/api/cart/items/m1/decrement", nil, http.StatusOK)
	if len(c.Items) != 1 || c.Items[0].ID != "m2" {
		t.Fatalf("m1 should be gone at zero: %+v", c.Items)
	}

	c = s.cart(http.MethodDelete, "/api/cart/items/m2", nil, http.StatusOK)
	if len(c.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", c.Items)
	}

	// Removing an absent line is a no-op.
	s.cart(http.MethodDelete, "/api/cart/items/m2", nil, http.StatusOK)
}

func TestCart_TotalAndClear(t *testing.T) {
	s := newSession(t)

	s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m1"}, http.StatusOK)
	s.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m2"}, http.StatusOK)

	resp := s.do(http.MethodGet, "/api/cart/total", nil, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if total := decodeJSON[totalResponse](t, resp); total.TotalPrice != 330.5 {
		t.Fatalf("total: got %v, want 330.5", total.TotalPrice)
	}

	c := s.cart(http.MethodDelete, "/api/cart", nil, http.StatusOK)
	if len(c.Items) != 0 {
		t.Fatalf("expected cleared cart, got %+v", c.Items)
	}
	c = s.cart(http.MethodGet, "/api/cart", nil, http.StatusOK)
	if len(c.Items) != 0 {
		t.Fatalf("clear did not persist: %+v", c.Items)
	}
}

func TestCart_SessionsAreIsolated(t *testing.T) {
	a := newSession(t)
	b := newSession(t)

	a.cart(http.MethodPost, "/api/cart/items", map[string]any{"id": "m1"}, http.StatusOK)

	c := b.cart(http.MethodGet, "/api/cart", nil, http.StatusOK)
	if len(c.Items) != 0 {
		t.Fatalf("second session sees the first cart: %+v", c.Items)
	}
	c = a.cart(http.MethodGet, "/api/cart", nil, http.StatusOK)
	if len(c.Items) != 1 {
		t.Fatalf("first session lost its cart: %+v", c.Items)
	}
}
