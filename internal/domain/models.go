package domain

import (
	"time"

	"github.com/google/uuid"
)

// Store represents a merchant store connected to the platform
type Store struct {
	ID           uuid.UUID
	ShopDomain   string
	AccessToken  string
	APIKeyHash   string
	APIKeyLookup string // SHA256(apiKey) hex for fast lookup; optional, set on create
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BundleComponent is one eligible (variant, quantity, group) ingredient of a bundle
type BundleComponent struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Group     string `json:"group"`
}

// BundleTier is a quantity breakpoint with its own discount type/value
type BundleTier struct {
	MinQty       int          `json:"min_qty"`
	DiscountType DiscountType `json:"discount_type"`
	Value        float64      `json:"value"`
}

// BundleEligibility gates whether a bundle can apply to a cart at all
type BundleEligibility struct {
	MustIncludeAllGroups bool `json:"must_include_all_groups"`
	MinCartQty           int  `json:"min_cart_qty"`
}

// BundleLimits bounds repeated application of a bundle within one order
type BundleLimits struct {
	MaxUsesPerOrder int `json:"max_uses_per_order"`
}

// BundleRules holds the discount and applicability rules of a bundle.
// When Tiers is non-empty the bundle is quantity-tiered and the flat
// DiscountType/Value pair is ignored in favor of tier selection.
type BundleRules struct {
	DiscountType DiscountType      `json:"discount_type"`
	Value        float64           `json:"value"`
	Tiers        []BundleTier      `json:"tiers,omitempty"`
	Eligibility  BundleEligibility `json:"eligibility"`
	Limits       BundleLimits      `json:"limits"`
}

// Tiered reports whether tier selection governs this bundle's discount
func (r BundleRules) Tiered() bool {
	return len(r.Tiers) > 0
}

// Bundle represents a merchant-defined multi-item discount rule
type Bundle struct {
	ID             uuid.UUID
	StoreID        uuid.UUID
	Name           string
	Status         BundleStatus
	Components     []BundleComponent
	Rules          BundleRules
	CoverVariantID *string
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BundleContribution is one bundle's share of an issued promotion
type BundleContribution struct {
	BundleID       uuid.UUID `json:"bundle_id"`
	DiscountAmount float64   `json:"discount_amount"`
}

// PromotionRecord is the durable mirror of a platform discount object,
// keyed by store and cart identity. At most one record per (store, cart
// identity) is in status `issued`, enforced by lookup-then-write plus a
// uniqueness constraint on Code.
type PromotionRecord struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	CartKey           *string // long-lived session/cart identifier, when available
	CartHash          string  // content identity of the normalized cart
	Code              string
	ExternalID        *string // platform-side resource id
	Kind              PromotionKind
	Status            PromotionStatus
	DiscountType      DiscountType
	DiscountAmount    float64
	IncludeProductIDs []string
	AppliedBundleIDs  []uuid.UUID
	BundlesSummary    []BundleContribution
	ExpiresAt         time.Time
	IssuedAt          time.Time
	LastSeenAt        time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Group returns the cart identity this record belongs to: the session cart
// key when present, otherwise the content hash.
func (p *PromotionRecord) Group() string {
	if p.CartKey != nil && *p.CartKey != "" {
		return *p.CartKey
	}
	return p.CartHash
}

// EvaluationEvent represents an audit event for an applied bundle
type EvaluationEvent struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	BundleID          uuid.UUID
	EventType         string
	CartHash          string
	MatchedVariantIDs []string
	CreatedAt         time.Time
}

// IdempotencyKey stores idempotency information for promotion sync requests
type IdempotencyKey struct {
	Key         string
	StoreID     uuid.UUID
	RequestHash string
	CreatedAt   time.Time
}
