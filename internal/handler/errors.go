package handler

import (
	"net/http"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-cart/internal/backend"
	"github.com/xenking/food-cart/internal/domain/catalog"
	"github.com/xenking/food-cart/internal/domain/checkout"
)

// badRequest is a malformed client request.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// fail maps err to a status code and writes the error body. Unexpected
// errors are logged and reported as 500 without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad      badRequest
		invalid  *checkout.ValidationError
		rejected *checkout.RejectedError
		upstream *backend.Error
	)
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.Error())
	case errors.As(err, &invalid):
		writeValidationError(w, invalid)
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, catalog.ErrNotFound.Error())
	case errors.Is(err, checkout.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, checkout.ErrOrderNotFound.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusConflict, checkout.ErrEmptyCart.Error())
	case errors.Is(err, checkout.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, checkout.ErrSessionExpired.Error())
	case errors.As(err, &rejected):
		writeError(w, http.StatusUnprocessableEntity, rejected.Error())
	case errors.As(err, &upstream):
		zctx.From(r.Context()).Warn("Backend failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend unavailable")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeValidationError(w http.ResponseWriter, verr *checkout.ValidationError) {
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusBadRequest)
		e.FieldStart("message")
		e.Str("invalid request")
		e.FieldStart("fields")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(verr.Fields[name])
		}
		e.ObjEnd()
		e.ObjEnd()
	})
}
