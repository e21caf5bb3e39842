// Package payload builds the event-type-specific custom_data objects from
// storefront domain entities. Builders are pure: they never perform I/O and
// never fail, and opportunistic fields (category, brand, availability) are
// included only when resolvable.
package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/model"
)

// Availability values understood by the catalog.
const (
	availabilityInStock    = "in stock"
	availabilityOutOfStock = "out of stock"
)

// Builder produces CustomData payloads using a fixed content-id strategy so
// product identity stays consistent across every event type.
type Builder struct {
	idFormat string
}

// NewBuilder returns a builder using the given content-id format preference
// (config.ContentIDSKUFallback or config.ContentIDProductID).
func NewBuilder(idFormat string) *Builder {
	if idFormat != config.ContentIDProductID {
		idFormat = config.ContentIDSKUFallback
	}
	return &Builder{idFormat: idFormat}
}

// ContentID resolves the catalog identifier for a product: the SKU with a
// fallback to the internal id by default, or always the internal id.
func (b *Builder) ContentID(p model.Product) string {
	if b.idFormat == config.ContentIDSKUFallback && p.SKU != "" {
		return p.SKU
	}
	return strconv.FormatInt(p.ID, 10)
}

// ViewContent builds the payload for a product page view.
func (b *Builder) ViewContent(p model.Product) model.CustomData {
	id := b.ContentID(p)
	price := toValue(p.Price)
	data := model.CustomData{
		ContentName: p.Name,
		ContentIDs:  []string{id},
		ContentType: "product",
		Contents:    []model.ContentEntry{{ID: id, Quantity: 1, ItemPrice: price}},
		Value:       price,
		Currency:    p.Currency,
	}
	decorate(&data, p)
	return data
}

// ViewCategory builds the payload for a product category listing.
func (b *Builder) ViewCategory(name string) model.CustomData {
	return model.CustomData{
		ContentName:     name,
		ContentCategory: name,
		ContentType:     "product_group",
	}
}

// AddToWishlist builds the payload for a wishlist addition.
func (b *Builder) AddToWishlist(p model.Product) model.CustomData {
	id := b.ContentID(p)
	return model.CustomData{
		ContentName: p.Name,
		ContentIDs:  []string{id},
		ContentType: "product",
		Value:       toValue(p.Price),
		Currency:    p.Currency,
	}
}

// AddToCart builds the payload for a cart addition of quantity units.
func (b *Builder) AddToCart(p model.Product, quantity int) model.CustomData {
	if quantity < 1 {
		quantity = 1
	}
	id := b.ContentID(p)
	price := toValue(p.Price)
	data := model.CustomData{
		ContentName: p.Name,
		ContentIDs:  []string{id},
		ContentType: "product",
		Contents:    []model.ContentEntry{{ID: id, Quantity: quantity, ItemPrice: price}},
		Value:       toValue(p.Price.Mul(decimal.NewFromInt(int64(quantity)))),
		Currency:    p.Currency,
		NumItems:    quantity,
	}
	decorate(&data, p)
	return data
}

// Checkout builds the shared payload shape for InitiateCheckout and
// AddPaymentInfo. Value is the cart's authoritative total, not a per-line
// sum.
func (b *Builder) Checkout(cart model.Cart) model.CustomData {
	ids := make([]string, 0, len(cart.Items))
	contents := make([]model.ContentEntry, 0, len(cart.Items))
	for _, item := range cart.Items {
		id := b.ContentID(item.Product)
		ids = append(ids, id)
		contents = append(contents, model.ContentEntry{
			ID:        id,
			Quantity:  item.Quantity,
			ItemPrice: toValue(item.Product.Price),
		})
	}
	data := model.CustomData{
		ContentIDs:  ids,
		Contents:    contents,
		ContentType: "product",
		Value:       toValue(cart.Total),
		Currency:    cart.Currency,
		NumItems:    cart.ItemCount(),
	}
	if len(cart.Items) > 0 && cart.Items[0].Product.Category != "" {
		data.ContentCategory = cart.Items[0].Product.Category
	}
	return data
}

// Purchase builds the payload for a completed order. Per-line item_price is
// the settled line total divided by quantity; the event value is the order's
// authoritative total to avoid rounding drift.
func (b *Builder) Purchase(order model.Order) model.CustomData {
	ids := make([]string, 0, len(order.Items))
	contents := make([]model.ContentEntry, 0, len(order.Items))
	for _, item := range order.Items {
		id := b.ContentID(item.Product)
		ids = append(ids, id)
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		unit := item.LineTotal.Div(decimal.NewFromInt(int64(qty)))
		contents = append(contents, model.ContentEntry{
			ID:        id,
			Quantity:  item.Quantity,
			ItemPrice: toValue(unit),
		})
	}
	return model.CustomData{
		ContentIDs:  ids,
		Contents:    contents,
		ContentType: "product",
		Value:       toValue(order.Total),
		Currency:    order.Currency,
		NumItems:    order.ItemCount(),
	}
}

// Search builds the payload for a search submission.
func (b *Builder) Search(term string) model.CustomData {
	return model.CustomData{SearchString: term}
}

// Lead builds the payload for a contact-form submission.
func (b *Builder) Lead(formName string) model.CustomData {
	return model.CustomData{ContentName: formName}
}

// Registration builds the payload for a completed customer registration.
func (b *Builder) Registration() model.CustomData {
	return model.CustomData{Status: "registered"}
}

// decorate adds the opportunistic catalog fields whenever resolvable.
func decorate(data *model.CustomData, p model.Product) {
	if p.Category != "" {
		data.ContentCategory = p.Category
	}
	if p.Brand != "" {
		data.Brand = p.Brand
	}
	if p.InStock {
		data.Availability = availabilityInStock
	} else {
		data.Availability = availabilityOutOfStock
	}
}

func toValue(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// NormalizeContentIDs coerces any content-id shape a data source may supply
// (scalar, comma-joined string, array of mixed scalars) into an array of
// strings.
func NormalizeContentIDs(v any) []string {
	switch ids := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, scalarToString(id))
		}
		return out
	case string:
		parts := strings.Split(ids, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []string{scalarToString(v)}
	}
}

func scalarToString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
