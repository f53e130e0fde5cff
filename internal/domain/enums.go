package domain

// BundleStatus represents the lifecycle status of a bundle definition
type BundleStatus string

const (
	// DRAFT - bundle created but not yet visible to matching
	BundleStatusDraft BundleStatus = "draft"
	// ACTIVE - bundle participates in cart evaluation
	BundleStatusActive BundleStatus = "active"
	// PAUSED - bundle temporarily excluded from matching
	BundleStatusPaused BundleStatus = "paused"
)

// IsValid checks if the bundle status is valid
func (s BundleStatus) IsValid() bool {
	switch s {
	case BundleStatusDraft, BundleStatusActive, BundleStatusPaused:
		return true
	default:
		return false
	}
}

// DiscountType is the closed set of discount formulas a bundle or tier can carry
type DiscountType string

const (
	// FIXED - a flat amount off the bundle subtotal, capped at the subtotal
	DiscountTypeFixed DiscountType = "fixed"
	// PERCENTAGE - a percentage (0-100) off the bundle subtotal
	DiscountTypePercentage DiscountType = "percentage"
	// BUNDLE_PRICE - the customer pays `value` for the bundle; discount is the remainder
	DiscountTypeBundlePrice DiscountType = "bundle_price"
)

// IsValid checks if the discount type is valid
func (t DiscountType) IsValid() bool {
	switch t {
	case DiscountTypeFixed, DiscountTypePercentage, DiscountTypeBundlePrice:
		return true
	default:
		return false
	}
}

// DiscountAmount computes the discount for a bundle subtotal under this type.
// A non-positive subtotal always yields 0, as does an unknown type.
func (t DiscountType) DiscountAmount(subtotal, value float64) float64 {
	if subtotal <= 0 {
		return 0
	}
	switch t {
	case DiscountTypePercentage:
		pct := value
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return subtotal * pct / 100
	case DiscountTypeFixed:
		v := value
		if v < 0 {
			v = 0
		}
		if v > subtotal {
			return subtotal
		}
		return v
	case DiscountTypeBundlePrice:
		v := value
		if v < 0 {
			v = 0
		}
		if subtotal <= v {
			return 0
		}
		return subtotal - v
	default:
		return 0
	}
}

// PromotionKind distinguishes the external platform resource mirroring a promotion
type PromotionKind string

const (
	// COUPON - a discount code the storefront applies at checkout
	PromotionKindCoupon PromotionKind = "coupon"
	// OFFER - an automatic discount applied without a code
	PromotionKindOffer PromotionKind = "offer"
)

// IsValid checks if the promotion kind is valid
func (k PromotionKind) IsValid() bool {
	return k == PromotionKindCoupon || k == PromotionKindOffer
}

// PromotionStatus represents the status of an issued promotion record
type PromotionStatus string

const (
	// ISSUED - the promotion is live for its cart identity
	PromotionStatusIssued PromotionStatus = "issued"
	// REDEEMED - the promotion was consumed by a completed checkout
	PromotionStatusRedeemed PromotionStatus = "redeemed"
	// SUPERSEDED - a newer promotion replaced this one for the same cart identity
	PromotionStatusSuperseded PromotionStatus = "superseded"
	// EXPIRED - the promotion passed its expiry without being redeemed
	PromotionStatusExpired PromotionStatus = "expired"
	// CLEARED - the cart no longer qualifies and the promotion was retired
	PromotionStatusCleared PromotionStatus = "cleared"
)

// IsValid checks if the promotion status is valid
func (s PromotionStatus) IsValid() bool {
	switch s {
	case PromotionStatusIssued,
		PromotionStatusRedeemed,
		PromotionStatusSuperseded,
		PromotionStatusExpired,
		PromotionStatusCleared:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid
func (s PromotionStatus) CanTransitionTo(newStatus PromotionStatus) bool {
	switch s {
	case PromotionStatusIssued:
		return newStatus == PromotionStatusRedeemed ||
			newStatus == PromotionStatusSuperseded ||
			newStatus == PromotionStatusExpired ||
			newStatus == PromotionStatusCleared
	case PromotionStatusSuperseded:
		return newStatus == PromotionStatusExpired
	case PromotionStatusRedeemed, PromotionStatusExpired, PromotionStatusCleared:
		return false // Terminal states
	default:
		return false
	}
}
