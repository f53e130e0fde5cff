package domain

// VariantSnapshot is the catalog state of one variant at evaluation time.
// Supplied per-call by the catalog provider; not owned by this service.
type VariantSnapshot struct {
	VariantID string  `json:"variant_id"`
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	IsActive  bool    `json:"is_active"`
}

// Sellable reports whether the variant can participate in a bundle
// selection: active, priced, and attached to a product. A missing or
// inactive variant is unavailable, never zero-price.
func (v VariantSnapshot) Sellable() bool {
	return v.IsActive && v.Price > 0 && v.ProductID != ""
}

// SnapshotResult is the (possibly partial) outcome of a catalog lookup
type SnapshotResult struct {
	Snapshots map[string]VariantSnapshot `json:"snapshots"`
	Missing   []string                   `json:"missing,omitempty"`
}
