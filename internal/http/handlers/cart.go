package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/http/dto"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/session"
)

type CartHandler struct{ sessions *session.Registry }

func NewCartHandler(sessions *session.Registry) *CartHandler { return &CartHandler{sessions: sessions} }

func (h *CartHandler) dispatcher(r *http.Request) *cart.Dispatcher {
	return h.sessions.Get(middleware.GetSessionID(r.Context())).Dispatcher
}

func (h *CartHandler) writeCart(w http.ResponseWriter, status int, d *cart.Dispatcher) {
	writeJSON(w, status, dto.NewCart(d.Store().Snapshot(), d.Pricing()))
}

// GetCartMe refreshes the cart from the backend.
func (h *CartHandler) GetCartMe(w http.ResponseWriter, r *http.Request) {
	d := h.dispatcher(r)
	if err := d.FetchCart(r.Context()); err != nil {
		writeCartError(w, r, err, nil)
		return
	}
	h.writeCart(w, http.StatusOK, d)
}

// SnapshotMe returns the cached cart without touching the backend.
func (h *CartHandler) SnapshotMe(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, http.StatusOK, h.dispatcher(r))
}

func (h *CartHandler) AddItemMe(w http.ResponseWriter, r *http.Request) {
	var req dto.AddCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	d := h.dispatcher(r)
	err := d.AddItem(r.Context(), cart.AddItemInput{
		ProductRef:      req.ProductRef,
		Quantity:        req.Quantity,
		SelectedOptions: req.SelectedOptions,
	})
	if err != nil {
		writeCartError(w, r, err, nil)
		return
	}
	h.writeCart(w, http.StatusOK, d)
}

func (h *CartHandler) UpdateItemMe(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	var req dto.UpdateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	if (req.Delta == nil) == (req.Quantity == nil) {
		writeBadRequest(w, r, "exactly one of delta or quantity is required")
		return
	}

	d := h.dispatcher(r)
	var err error
	if req.Delta != nil {
		err = d.UpdateItemQuantity(r.Context(), itemID, *req.Delta)
	} else {
		err = d.SetItemQuantity(r.Context(), itemID, *req.Quantity)
	}
	if err != nil {
		writeCartError(w, r, err, nil)
		return
	}
	h.writeCart(w, http.StatusOK, d)
}

func (h *CartHandler) RemoveItemMe(w http.ResponseWriter, r *http.Request) {
	d := h.dispatcher(r)
	if err := d.RemoveItem(r.Context(), chi.URLParam(r, "itemId")); err != nil {
		writeCartError(w, r, err, nil)
		return
	}
	h.writeCart(w, http.StatusOK, d)
}

func (h *CartHandler) CheckoutMe(w http.ResponseWriter, r *http.Request) {
	var req cart.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	d := h.dispatcher(r)
	res, err := d.Checkout(r.Context(), req)
	if err != nil {
		var fields map[string]string
		if cart.KindOf(err) == cart.KindValidation {
			if problems := req.Validate(); len(problems) > 0 {
				fields = problems
			}
		}
		writeCartError(w, r, err, fields)
		return
	}
	writeJSON(w, http.StatusOK, dto.CheckoutResponse{
		Order: res,
		Cart:  dto.NewCart(d.Store().Snapshot(), d.Pricing()),
	})
}
