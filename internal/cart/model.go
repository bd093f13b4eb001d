package cart

import "github.com/shopspring/decimal"

// LineItem is one product/quantity/options tuple as confirmed by the cart backend.
type LineItem struct {
	ID              string            `json:"id"`
	ProductRef      string            `json:"productRef"`
	Title           string            `json:"title,omitempty"`
	ThumbnailURL    string            `json:"thumbnailUrl,omitempty"`
	UnitPrice       decimal.Decimal   `json:"unitPrice"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

func (li LineItem) clone() LineItem {
	if li.SelectedOptions != nil {
		opts := make(map[string]string, len(li.SelectedOptions))
		for k, v := range li.SelectedOptions {
			opts[k] = v
		}
		li.SelectedOptions = opts
	}
	return li
}

// Cart is a point-in-time snapshot of the Store.
type Cart struct {
	Items      []LineItem `json:"items"`
	Loading    bool       `json:"loading"`
	Err        *Error     `json:"error,omitempty"`
	Generation uint64     `json:"generation"`
}

// Find returns the cached line item with the given id.
func (c Cart) Find(itemID string) (LineItem, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return LineItem{}, false
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.clone())
	}
	return out
}

// AddItemInput is the payload of an add-to-cart mutation.
type AddItemInput struct {
	ProductRef      string            `json:"productRef"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

// Reply is the decoded cart envelope of a backend response.
// HasItems is false when the body carried neither `items` nor `data.items`.
type Reply struct {
	Items    []LineItem
	HasItems bool
}
