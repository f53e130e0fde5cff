package service

import (
	"math"

	"github.com/jafarshop/bundles/internal/shopify"
	"github.com/jafarshop/bundles/pkg/errors"
)

// maxReconcileAttempts bounds every retry ladder in the reconciler
const maxReconcileAttempts = 6

// attemptState is the mutable payload a retry ladder transforms between
// attempts: the platform input plus the promotion code being reserved.
type attemptState struct {
	input   shopify.PromotionInput
	code    string
	attempt int
	floored bool
}

// retryRule pairs a rejection predicate with a payload transform. When the
// predicate matches a failed attempt and the transform applies cleanly, the
// operation is retried with the transformed state.
type retryRule struct {
	name      string
	match     func(err error) bool
	transform func(state *attemptState) bool
}

// runWithRetry drives an operation through a ladder of retry rules, at most
// maxReconcileAttempts attempts in total. The first rule whose predicate
// matches the error gets to transform the state; an error no rule matches
// (or a transform that no longer applies) is returned as-is.
func runWithRetry(state *attemptState, rules []retryRule, op func(state *attemptState) error) error {
	var lastErr error
	for state.attempt = 1; state.attempt <= maxReconcileAttempts; state.attempt++ {
		lastErr = op(state)
		if lastErr == nil {
			return nil
		}

		transformed := false
		for _, rule := range rules {
			if !rule.match(lastErr) {
				continue
			}
			if !rule.transform(state) {
				return lastErr
			}
			transformed = true
			break
		}
		if !transformed {
			return lastErr
		}
	}
	return lastErr
}

// floorDiscountRule retries a 422 validation rejection once with the
// discount floored to the nearest integer. Applies only when the floor is
// at least 1 and strictly below the original amount; some platform
// validators reject fractional discount amounts.
func floorDiscountRule() retryRule {
	return retryRule{
		name: "floor_discount",
		match: func(err error) bool {
			rejection, ok := errors.AsPlatformRejection(err)
			return ok && rejection.IsValidationRejection()
		},
		transform: func(state *attemptState) bool {
			if state.floored {
				return false
			}
			floored := math.Floor(state.input.Amount)
			if floored < 1 || floored >= state.input.Amount {
				return false
			}
			state.input.Amount = floored
			state.floored = true
			return true
		},
	}
}

// renameRule retries a 409 naming conflict with a regenerated title
// carrying a distinguishing suffix.
func renameRule(rename func(attempt int) string) retryRule {
	return retryRule{
		name: "regenerate_name",
		match: func(err error) bool {
			rejection, ok := errors.AsPlatformRejection(err)
			return ok && rejection.IsNameConflict()
		},
		transform: func(state *attemptState) bool {
			state.input.Title = rename(state.attempt)
			return true
		},
	}
}

// recodeRule retries a storage uniqueness conflict on the promotion code
// with a freshly generated code.
func recodeRule(generate func() string, onRecode func(state *attemptState)) retryRule {
	return retryRule{
		name:  "regenerate_code",
		match: errors.IsConflict,
		transform: func(state *attemptState) bool {
			state.code = generate()
			state.input.Code = state.code
			if onRecode != nil {
				onRecode(state)
			}
			return true
		},
	}
}
