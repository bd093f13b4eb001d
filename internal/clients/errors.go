package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
)

// Classify maps a non-2xx upstream response onto the cart error taxonomy.
func Classify(op string, status int, body []byte) *cart.Error {
	msg, code := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind cart.Kind
	switch {
	case status == http.StatusUnauthorized:
		kind = cart.KindLoginRequired
	case status == http.StatusPaymentRequired, status >= 400 && status < 500 && mentionsDecline(msg, code):
		kind = cart.KindPaymentDeclined
	case status == http.StatusNotFound:
		kind = cart.KindNotFound
	case status >= 400 && status < 500:
		kind = cart.KindValidation
	default:
		kind = cart.KindServer
	}

	return &cart.Error{Kind: kind, Op: op, Status: status, Message: msg}
}

// malformed reports a 2xx response whose body could not be decoded.
func malformed(op string, status int, err error) *cart.Error {
	return &cart.Error{Kind: cart.KindServer, Op: op, Status: status, Message: "malformed response from cart service", Err: err}
}

func transportError(ctx context.Context, op string, err error) *cart.Error {
	// The caller's context tells a cancellation apart from a timeout; the
	// transport error alone often only says "context canceled".
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return cart.NewError(cart.KindNetwork, op, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return cart.NewError(cart.KindCanceled, op, "request cancelled", err)
	default:
		return cart.NewError(cart.KindNetwork, op, "cart service unreachable", err)
	}
}

func errorMessage(body []byte) (msg, code string) {
	var doc struct {
		Message string          `json:"message"`
		Code    string          `json:"code"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return strings.TrimSpace(string(body)), ""
	}
	msg, code = doc.Message, doc.Code

	if len(doc.Error) > 0 {
		var s string
		if json.Unmarshal(doc.Error, &s) == nil {
			if msg == "" {
				msg = s
			}
		} else {
			var nested struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			if json.Unmarshal(doc.Error, &nested) == nil {
				if msg == "" {
					msg = nested.Message
				}
				if code == "" {
					code = nested.Code
				}
			}
		}
	}
	return msg, code
}

func mentionsDecline(msg, code string) bool {
	s := strings.ToLower(msg + " " + code)
	return strings.Contains(s, "declined") || strings.Contains(s, "card_declined")
}
