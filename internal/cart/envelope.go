package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// wireItem accepts the field spellings the storefront backend has used over time.
type wireItem struct {
	ID              string            `json:"id"`
	LegacyID        string            `json:"_id"`
	ProductRef      string            `json:"productRef"`
	ProductID       string            `json:"productId"`
	Product         json.RawMessage   `json:"product"`
	Title           string            `json:"title"`
	Name            string            `json:"name"`
	ThumbnailURL    string            `json:"thumbnailUrl"`
	Thumbnail       string            `json:"thumbnail"`
	UnitPrice       *decimal.Decimal  `json:"unitPrice"`
	Price           *decimal.Decimal  `json:"price"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions"`
}

type wireProduct struct {
	ID        string `json:"id"`
	LegacyID  string `json:"_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

type itemsEnvelope struct {
	Items *[]wireItem `json:"items"`
	Data  *struct {
		Items *[]wireItem `json:"items"`
	} `json:"data"`
}

// DecodeItems decodes a `{items}` or `{data:{items}}` cart envelope.
func DecodeItems(body []byte) (Reply, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Reply{}, nil
	}

	var env itemsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Reply{}, fmt.Errorf("decode cart envelope: %w", err)
	}

	var raw *[]wireItem
	switch {
	case env.Items != nil:
		raw = env.Items
	case env.Data != nil && env.Data.Items != nil:
		raw = env.Data.Items
	default:
		return Reply{}, nil
	}

	items := make([]LineItem, 0, len(*raw))
	for i, w := range *raw {
		it, err := w.toLineItem()
		if err != nil {
			return Reply{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, it)
	}
	return Reply{Items: items, HasItems: true}, nil
}

func (w wireItem) toLineItem() (LineItem, error) {
	it := LineItem{
		ID:              firstNonEmpty(w.ID, w.LegacyID),
		ProductRef:      firstNonEmpty(w.ProductRef, w.ProductID),
		Title:           firstNonEmpty(w.Title, w.Name),
		ThumbnailURL:    firstNonEmpty(w.ThumbnailURL, w.Thumbnail),
		Quantity:        w.Quantity,
		SelectedOptions: w.SelectedOptions,
	}
	if it.ID == "" {
		return LineItem{}, errors.New("line item without id")
	}

	if len(w.Product) > 0 && !bytes.Equal(bytes.TrimSpace(w.Product), []byte("null")) {
		var ref string
		if err := json.Unmarshal(w.Product, &ref); err == nil {
			it.ProductRef = firstNonEmpty(it.ProductRef, ref)
		} else {
			var p wireProduct
			if err := json.Unmarshal(w.Product, &p); err != nil {
				return LineItem{}, fmt.Errorf("product: %w", err)
			}
			it.ProductRef = firstNonEmpty(it.ProductRef, p.ID, p.LegacyID)
			it.Title = firstNonEmpty(it.Title, p.Title)
			it.ThumbnailURL = firstNonEmpty(it.ThumbnailURL, p.Thumbnail)
		}
	}

	switch {
	case w.UnitPrice != nil:
		it.UnitPrice = *w.UnitPrice
	case w.Price != nil:
		it.UnitPrice = *w.Price
	}
	if it.UnitPrice.IsNegative() {
		return LineItem{}, fmt.Errorf("negative unit price %s", it.UnitPrice)
	}

	if it.Quantity < 1 {
		it.Quantity = 1
	}
	return it, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
