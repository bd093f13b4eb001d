package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/model"
)

const maxRequestBytes = 1 << 20

// StatusForKind maps a cart error kind onto the HTTP status returned to the UI.
func StatusForKind(k cart.Kind) int {
	switch k {
	case cart.KindLoginRequired:
		return http.StatusUnauthorized
	case cart.KindValidation:
		return http.StatusUnprocessableEntity
	case cart.KindNotFound:
		return http.StatusNotFound
	case cart.KindPaymentDeclined:
		return http.StatusPaymentRequired
	case cart.KindNetwork:
		return http.StatusServiceUnavailable
	case cart.KindCanceled:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCartError writes a normalized cart failure. fields, when set, lists
// per-field validation problems.
func writeCartError(w http.ResponseWriter, r *http.Request, err error, fields map[string]string) {
	var ce *cart.Error
	if !errors.As(err, &ce) {
		ce = cart.NewError(cart.KindServer, "", err.Error(), err)
	}
	writeJSON(w, StatusForKind(ce.Kind), model.ErrorResponse{
		Error:         ce.Message,
		Kind:          string(ce.Kind),
		Retryable:     ce.Retryable(),
		Fields:        fields,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
		Error:         msg,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes)).Decode(v)
}
