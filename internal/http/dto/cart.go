package dto

import (
	"encoding/json"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
)

type CartError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Cart is the UI view of a session's cart: the cached snapshot plus totals.
type Cart struct {
	Items      []cart.LineItem `json:"items"`
	Loading    bool            `json:"loading"`
	Error      *CartError      `json:"error"`
	Generation uint64          `json:"generation"`
	Totals     cart.Totals     `json:"totals"`
}

func NewCart(c cart.Cart, p cart.Pricing) Cart {
	out := Cart{
		Items:      c.Items,
		Loading:    c.Loading,
		Generation: c.Generation,
		Totals:     cart.ComputeTotals(c, p),
	}
	if out.Items == nil {
		out.Items = []cart.LineItem{}
	}
	if c.Err != nil {
		out.Error = &CartError{Kind: string(c.Err.Kind), Message: c.Err.Message, Retryable: c.Err.Retryable()}
	}
	return out
}

type AddCartItemRequest struct {
	ProductRef      string            `json:"productRef"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

// UpdateCartItemRequest carries exactly one of a relative delta or an
// absolute quantity.
type UpdateCartItemRequest struct {
	Delta    *int `json:"delta,omitempty"`
	Quantity *int `json:"quantity,omitempty"`
}

type CheckoutResponse struct {
	Order cart.CheckoutResult `json:"order"`
	Cart  Cart                `json:"cart"`
}

type StartSessionRequest struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

type SessionResponse struct {
	SessionID     string `json:"sessionId"`
	Authenticated bool   `json:"authenticated"`
}
