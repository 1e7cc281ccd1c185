package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListMeals returns the backend catalog.
func (h *Handler) ListMeals(w http.ResponseWriter, r *http.Request) {
	meals, err := h.meals.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, m := range meals {
			encodeMeal(e, m)
		}
		e.ArrEnd()
	})
}
