package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
)

const (
	EventTypeCartCheckedOut = "CartCheckedOut"
	EventTypeCartReset      = "CartReset"

	cartCheckedOutSchema = "storefront.cart.checkedout.v1"
	cartResetSchema      = "storefront.cart.reset.v1"
)

type CartLine struct {
	ItemID     string          `json:"itemId"`
	ProductRef string          `json:"productRef"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

type CartCheckedOutPayload struct {
	SessionID   string          `json:"sessionId"`
	OrderID     string          `json:"orderId,omitempty"`
	OrderStatus string          `json:"orderStatus,omitempty"`
	Items       []CartLine      `json:"items"`
	ItemCount   int             `json:"itemCount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
	Timestamp   time.Time       `json:"timestamp"`
}

type CartResetPayload struct {
	SessionID string    `json:"sessionId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type CartCheckedOutEvent = EventEnvelope[CartCheckedOutPayload]
type CartResetEvent = EventEnvelope[CartResetPayload]

// EventMeta carries correlation context for emitted events.
type EventMeta struct {
	CorrelationID string
	CausationID   string
}

func newCartCheckedOutEvent(meta EventMeta, producer string, seq int64, ev cart.CheckoutEvent, occurredAt time.Time) CartCheckedOutEvent {
	payload := CartCheckedOutPayload{
		SessionID:   ev.SessionID,
		OrderID:     ev.Result.OrderID,
		OrderStatus: ev.Result.Status,
		Items:       make([]CartLine, 0, len(ev.Items)),
		ItemCount:   ev.Totals.ItemCount,
		Subtotal:    ev.Totals.Subtotal,
		Discount:    ev.Totals.Discount,
		DeliveryFee: ev.Totals.DeliveryFee,
		Total:       ev.Totals.Total,
		Timestamp:   occurredAt,
	}
	for _, it := range ev.Items {
		payload.Items = append(payload.Items, CartLine{
			ItemID:     it.ID,
			ProductRef: it.ProductRef,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}

	return CartCheckedOutEvent{
		EventName:     EventTypeCartCheckedOut,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  ev.SessionID,
		Sequence:      &seq,
		OccurredAt:    occurredAt,
		Schema:        cartCheckedOutSchema,
		Payload:       payload,
	}
}

func newCartResetEvent(meta EventMeta, producer string, seq int64, ev cart.ResetEvent, occurredAt time.Time) CartResetEvent {
	return CartResetEvent{
		EventName:     EventTypeCartReset,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  ev.SessionID,
		Sequence:      &seq,
		OccurredAt:    occurredAt,
		Schema:        cartResetSchema,
		Payload: CartResetPayload{
			SessionID: ev.SessionID,
			Reason:    ev.Reason,
			Timestamp: occurredAt,
		},
	}
}
