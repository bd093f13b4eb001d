package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// CheckoutRequest carries the payment/shipping metadata posted to /cart/checkout.
type CheckoutRequest struct {
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	Shipping      ShippingAddress   `json:"shipping"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	SuccessURL    string            `json:"successUrl,omitempty"`
	CancelURL     string            `json:"cancelUrl,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Validate returns field -> message for every missing or malformed field.
func (r CheckoutRequest) Validate() map[string]string {
	problems := make(map[string]string)
	if !emailPattern.MatchString(r.Email) {
		problems["email"] = "valid email is required"
	}
	required := map[string]string{
		"street":  r.Shipping.Street,
		"city":    r.Shipping.City,
		"state":   r.Shipping.State,
		"zip":     r.Shipping.Zip,
		"country": r.Shipping.Country,
		"phone":   r.Phone,
	}
	for field, v := range required {
		if strings.TrimSpace(v) == "" {
			problems[field] = field + " is required"
		}
	}
	return problems
}

// CheckoutResult is the order confirmation returned by the backend. This
// package only uses it to report back to the caller.
type CheckoutResult struct {
	OrderID     string          `json:"orderId,omitempty"`
	Status      string          `json:"status,omitempty"`
	CheckoutURL string          `json:"url,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// DecodeCheckoutResult tolerates both flat and `{data:...}` / `{order:...}` shapes.
func DecodeCheckoutResult(body []byte) (CheckoutResult, error) {
	res := CheckoutResult{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return res, nil
	}
	res.Raw = json.RawMessage(append([]byte(nil), trimmed...))

	type order struct {
		ID       string `json:"id"`
		LegacyID string `json:"_id"`
		Status   string `json:"status"`
	}
	type flat struct {
		OrderID   string `json:"orderId"`
		Status    string `json:"status"`
		URL       string `json:"url"`
		SessionID string `json:"sessionId"`
		Order     *order `json:"order"`
	}
	var doc struct {
		flat
		Data *flat `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return CheckoutResult{}, fmt.Errorf("decode checkout result: %w", err)
	}

	f := doc.flat
	if doc.Data != nil {
		f = *doc.Data
	}
	res.OrderID = f.OrderID
	res.Status = f.Status
	res.CheckoutURL = f.URL
	res.SessionID = f.SessionID
	if f.Order != nil {
		res.OrderID = firstNonEmpty(res.OrderID, f.Order.ID, f.Order.LegacyID)
		res.Status = firstNonEmpty(res.Status, f.Order.Status)
	}
	return res, nil
}
