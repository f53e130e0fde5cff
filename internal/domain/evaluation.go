package domain

import "github.com/google/uuid"

// AppliedRule is the (type, value) pair that produced a discount
type AppliedRule struct {
	Type  DiscountType `json:"type"`
	Value float64      `json:"value"`
}

// SelectedComponent is one variant's share of a bundle application
type SelectedComponent struct {
	VariantID string  `json:"variant_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Application is one use of a bundle within a single cart evaluation
type Application struct {
	Selection      []SelectedComponent `json:"selection"`
	Subtotal       float64             `json:"subtotal"`
	DiscountAmount float64             `json:"discount_amount"`
	AppliedRule    AppliedRule         `json:"applied_rule"`
}

// PerBundleResult summarizes one bundle's outcome for a cart evaluation
type PerBundleResult struct {
	BundleID          uuid.UUID `json:"bundle_id"`
	Applied           bool      `json:"applied"`
	Uses              int       `json:"uses"`
	DiscountAmount    float64   `json:"discount_amount"`
	MatchedProductIDs []string  `json:"matched_product_ids,omitempty"`
}

// AppliedBundle is a bundle that contributed discount to the evaluation
type AppliedBundle struct {
	BundleID          uuid.UUID     `json:"bundle_id"`
	DiscountAmount    float64       `json:"discount_amount"`
	MatchedProductIDs []string      `json:"matched_product_ids"`
	AppliedRules      []AppliedRule `json:"applied_rules"`
}

// AppliedSummary is the merged view across all applied bundles.
// Rule is set only when exactly one distinct (type, value) pair applied
// across every use of every bundle; it feeds the legacy single-rule coupon
// path and is intentionally lossy otherwise.
type AppliedSummary struct {
	Bundles           []AppliedBundle `json:"bundles"`
	MatchedProductIDs []string        `json:"matched_product_ids"`
	MatchedVariantIDs []string        `json:"matched_variant_ids"`
	TotalDiscount     float64         `json:"total_discount"`
	Rule              *AppliedRule    `json:"rule,omitempty"`
}

// EvaluationResult is the full outcome of evaluating a cart against a
// store's active bundles
type EvaluationResult struct {
	Cart      NormalizedCart    `json:"cart"`
	CartHash  string            `json:"cart_hash"`
	PerBundle []PerBundleResult `json:"per_bundle"`
	Applied   AppliedSummary    `json:"applied"`
}

// HasDiscount reports whether the evaluation produced anything worth
// mirroring to the platform
func (r *EvaluationResult) HasDiscount() bool {
	return r.Applied.TotalDiscount > 0 && len(r.Applied.MatchedProductIDs) > 0
}
