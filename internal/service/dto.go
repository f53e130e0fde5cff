package service

import (
	"context"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/shopify"
)

// Mode selects the reconciliation strategy for issueOrReuse
type Mode string

const (
	// AUTHORITATIVE - full recomputation replaces platform state wholesale
	ModeAuthoritative Mode = "authoritative"
	// INCREMENTAL - per-bundle contributions accumulate over a session
	ModeIncremental Mode = "incremental"
)

// Action tags the outcome of a reconciliation
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionReuse  Action = "reuse"
	ActionKeep   Action = "keep"
	ActionClear  Action = "clear"
	ActionFail   Action = "fail"
)

// Failure carries a machine-readable reason for a failed reconciliation.
// Payload holds the last attempted platform payload in verbose mode.
type Failure struct {
	Reason  string      `json:"reason"`
	Detail  string      `json:"detail,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Failure reasons
const (
	FailureReasonStorage          = "storage_error"
	FailureReasonPlatformRejected = "platform_rejected"
	FailureReasonPlatformError    = "platform_error"
	FailureReasonRetriesExhausted = "retries_exhausted"
)

// Outcome is the non-throwing result of issueOrReuse. A fail outcome never
// aborts the surrounding cart flow; the storefront degrades to showing no
// discount.
type Outcome struct {
	Offer   *domain.PromotionRecord `json:"offer,omitempty"`
	Action  Action                  `json:"action"`
	Failure *Failure                `json:"failure,omitempty"`
}

// IssueOptions tunes a single issueOrReuse call
type IssueOptions struct {
	TTLHours int
	// CartKey is the long-lived session cart identifier; when empty the
	// cart hash is the identity.
	CartKey string
	// Mode defaults to incremental when CartKey is set, else authoritative.
	Mode Mode
	// Verbose includes the last attempted platform payload in failures.
	Verbose bool
}

// PromotionGateway mirrors promotion state on the commerce platform. Every
// method may return *errors.ErrPlatformRejection with an HTTP-like status;
// the reconciler keys its retry ladder off that status.
type PromotionGateway interface {
	CreateCoupon(ctx context.Context, store *domain.Store, in shopify.PromotionInput) (string, error)
	UpdateCoupon(ctx context.Context, store *domain.Store, externalID string, in shopify.PromotionInput) error
	CreateSpecialOffer(ctx context.Context, store *domain.Store, in shopify.PromotionInput) (string, error)
	UpdateSpecialOffer(ctx context.Context, store *domain.Store, externalID string, in shopify.PromotionInput) error
	ChangeStatus(ctx context.Context, store *domain.Store, externalID string, active bool) error
	Delete(ctx context.Context, store *domain.Store, externalID string, kind domain.PromotionKind) error
}
