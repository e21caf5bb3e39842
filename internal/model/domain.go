package model

import "github.com/shopspring/decimal"

// Customer holds the raw (unhashed) identity fields a storefront knows about
// a person: a persisted billing profile, a posted checkout form, or partial
// session data. All fields are optional.
type Customer struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
}

// IsZero reports whether the customer carries no identity data at all.
func (c Customer) IsZero() bool {
	return c == Customer{}
}

// Product is a catalog entry as supplied by the storefront.
type Product struct {
	ID       int64           `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
	InStock  bool            `json:"in_stock"`
	URL      string          `json:"url"`
}

// CartItem is one line of an in-progress cart.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Cart is the in-progress cart at checkout time. Total is the storefront's
// authoritative cart total; it is never recomputed from the lines here.
type Cart struct {
	Items    []CartItem      `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Hash     string          `json:"hash"`
}

// ItemCount returns the total unit count across all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// OrderItem is one purchased line with its settled line total.
type OrderItem struct {
	Product   Product         `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order is a completed transaction. UserID is zero for guest orders. Meta
// carries storefront key-value metadata (birth-date/gender-like keys, the
// customer reference for guests).
type Order struct {
	ID       int64             `json:"id"`
	UserID   int64             `json:"user_id"`
	Items    []OrderItem       `json:"items"`
	Total    decimal.Decimal   `json:"total"`
	Currency string            `json:"currency"`
	Billing  Customer          `json:"billing"`
	Meta     map[string]string `json:"meta"`
}

// ItemCount returns the total unit count across all order lines.
func (o Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}
