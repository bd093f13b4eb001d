package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
)

// CartClient talks to the storefront cart REST API. It implements cart.Remote.
type CartClient struct{ c *Client }

func NewCartClient(c *Client) *CartClient { return &CartClient{c: c} }

var _ cart.Remote = (*CartClient)(nil)

type addItemBody struct {
	ProductRef      string            `json:"productRef"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

type updateItemBody struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

func (cc *CartClient) GetCart(ctx context.Context, token string) (cart.Reply, error) {
	return cc.items(ctx, "fetchCart", http.MethodGet, "/cart", token, nil)
}

func (cc *CartClient) AddItem(ctx context.Context, token string, in cart.AddItemInput) (cart.Reply, error) {
	return cc.items(ctx, "addItem", http.MethodPost, "/cart/items", token, addItemBody{
		ProductRef:      in.ProductRef,
		Quantity:        in.Quantity,
		SelectedOptions: in.SelectedOptions,
	})
}

func (cc *CartClient) UpdateItem(ctx context.Context, token, itemID string, quantity int) (cart.Reply, error) {
	return cc.items(ctx, "updateItemQuantity", http.MethodPatch, "/cart/items", token, updateItemBody{
		ItemID:   itemID,
		Quantity: quantity,
	})
}

func (cc *CartClient) RemoveItem(ctx context.Context, token, itemID string) (cart.Reply, error) {
	return cc.items(ctx, "removeItem", http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), token, nil)
}

func (cc *CartClient) Checkout(ctx context.Context, token string, req cart.CheckoutRequest) (cart.CheckoutResult, error) {
	raw, err := cc.c.doJSON(ctx, "checkout", http.MethodPost, "/cart/checkout", token, req)
	if err != nil {
		return cart.CheckoutResult{}, err
	}
	res, err := cart.DecodeCheckoutResult(raw)
	if err != nil {
		return cart.CheckoutResult{}, malformed("checkout", http.StatusOK, err)
	}
	return res, nil
}

func (cc *CartClient) items(ctx context.Context, op, method, path, token string, in any) (cart.Reply, error) {
	raw, err := cc.c.doJSON(ctx, op, method, path, token, in)
	if err != nil {
		return cart.Reply{}, err
	}
	reply, err := cart.DecodeItems(raw)
	if err != nil {
		return cart.Reply{}, malformed(op, http.StatusOK, err)
	}
	return reply, nil
}
