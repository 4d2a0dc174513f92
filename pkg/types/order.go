package types

// OrderItem is a denormalized snapshot of a purchased product, stored as JSON
// on the order so later catalog edits cannot rewrite order history.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
	Image     string  `json:"image,omitempty"`
}

// ShippingAddress is the buyer-entered delivery address, stored as JSON.
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	District   string `json:"district"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

// OrderItems is the JSON-serialized line item collection.
type OrderItems []OrderItem
