package payload_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/model"
	"meta-pixel-relay/internal/payload"
)

func product() model.Product {
	return model.Product{
		ID:       42,
		SKU:      "WID-9",
		Name:     "Widget",
		Price:    decimal.RequireFromString("19.99"),
		Currency: "USD",
		Category: "Gadgets",
		Brand:    "Acme",
		InStock:  true,
	}
}

func TestContentIDSKUFallback(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)

	require.Equal(t, "WID-9", b.ContentID(product()))

	p := product()
	p.SKU = ""
	require.Equal(t, "42", b.ContentID(p))
}

func TestContentIDProductID(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDProductID)
	require.Equal(t, "42", b.ContentID(product()))
}

func TestViewContentWithoutSKU(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)
	p := product()
	p.SKU = ""

	data := b.ViewContent(p)
	require.Equal(t, []string{"42"}, data.ContentIDs)
	require.Equal(t, "product", data.ContentType)
	require.Equal(t, "Widget", data.ContentName)
	require.InDelta(t, 19.99, data.Value, 0.001)
	require.Equal(t, "USD", data.Currency)
	require.Equal(t, "Gadgets", data.ContentCategory)
	require.Equal(t, "Acme", data.Brand)
	require.Equal(t, "in stock", data.Availability)
}

func TestViewCategory(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)
	data := b.ViewCategory("Gadgets")
	require.Equal(t, "product_group", data.ContentType)
	require.Equal(t, "Gadgets", data.ContentName)
	require.Equal(t, "Gadgets", data.ContentCategory)
}

func TestAddToCartMultipliesQuantity(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)
	data := b.AddToCart(product(), 3)

	require.Equal(t, []string{"WID-9"}, data.ContentIDs)
	require.Equal(t, 3, data.NumItems)
	require.InDelta(t, 59.97, data.Value, 0.001)
	require.Len(t, data.Contents, 1)
	require.Equal(t, 3, data.Contents[0].Quantity)
	require.InDelta(t, 19.99, data.Contents[0].ItemPrice, 0.001)
}

func TestCheckoutUsesCartTotal(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)
	cart := model.Cart{
		Items: []model.CartItem{
			{Product: product(), Quantity: 2},
		},
		// Authoritative total includes a discount; must not be recomputed.
		Total:    decimal.RequireFromString("35.00"),
		Currency: "USD",
	}

	data := b.Checkout(cart)
	require.InDelta(t, 35.00, data.Value, 0.001)
	require.Equal(t, 2, data.NumItems)
	require.Equal(t, "Gadgets", data.ContentCategory)
}

func TestPurchaseDerivesUnitPriceFromLineTotal(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)
	order := model.Order{
		ID: 77,
		Items: []model.OrderItem{
			{Product: product(), Quantity: 2, LineTotal: decimal.RequireFromString("30.00")},
		},
		Total:    decimal.RequireFromString("30.00"),
		Currency: "USD",
	}

	data := b.Purchase(order)
	require.Equal(t, []string{"WID-9"}, data.ContentIDs)
	require.InDelta(t, 15.00, data.Contents[0].ItemPrice, 0.001)
	require.InDelta(t, 30.00, data.Value, 0.001)
	require.Equal(t, 2, data.NumItems)
}

func TestRegistrationStatus(t *testing.T) {
	b := payload.NewBuilder(config.ContentIDSKUFallback)
	require.Equal(t, "registered", b.Registration().Status)
}

func TestNormalizeContentIDs(t *testing.T) {
	require.Nil(t, payload.NormalizeContentIDs(nil))
	require.Equal(t, []string{"123"}, payload.NormalizeContentIDs("123"))
	require.Equal(t, []string{"123", "456"}, payload.NormalizeContentIDs("123, 456"))
	require.Equal(t, []string{"123"}, payload.NormalizeContentIDs([]string{" 123 ", ""}))
	require.Equal(t, []string{"123", "456"}, payload.NormalizeContentIDs([]any{"123", float64(456)}))
	require.Equal(t, []string{"789"}, payload.NormalizeContentIDs(789))
}
