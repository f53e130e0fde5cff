package service

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/audit"
	"github.com/jafarshop/bundles/internal/catalog"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
)

// EvaluationService runs a store's active bundles against a cart and merges
// the per-bundle results into a single evaluation.
type EvaluationService struct {
	repos   *repository.Repositories
	catalog catalog.Provider
	audit   audit.Publisher
	logger  *zap.Logger
}

// NewEvaluationService creates a new evaluation service
func NewEvaluationService(repos *repository.Repositories, provider catalog.Provider, publisher audit.Publisher, logger *zap.Logger) *EvaluationService {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	return &EvaluationService{
		repos:   repos,
		catalog: provider,
		audit:   publisher,
		logger:  logger,
	}
}

// EvaluateCart normalizes the cart, fetches variant snapshots for it, and
// evaluates it against the store's active bundles.
func (s *EvaluationService) EvaluateCart(ctx context.Context, store *domain.Store, lines []domain.CartLine) (*domain.EvaluationResult, error) {
	cart := domain.NormalizeCart(lines)

	snapResult, err := s.catalog.FetchSnapshots(ctx, store, cart.VariantIDs())
	if err != nil {
		return nil, err
	}
	if len(snapResult.Missing) > 0 {
		s.logger.Debug("Some cart variants have no catalog snapshot",
			zap.String("store_id", store.ID.String()),
			zap.Strings("missing", snapResult.Missing),
		)
	}

	return s.Evaluate(ctx, store, lines, snapResult.Snapshots)
}

// Evaluate computes the evaluation over caller-supplied snapshots. Missing
// or inactive variants are simply unavailable to the matcher.
func (s *EvaluationService) Evaluate(ctx context.Context, store *domain.Store, lines []domain.CartLine, snaps map[string]domain.VariantSnapshot) (*domain.EvaluationResult, error) {
	cart := domain.NormalizeCart(lines)
	result := &domain.EvaluationResult{
		Cart:     cart,
		CartHash: cart.Hash(),
	}

	bundles, err := s.repos.Bundle.ListActiveByStoreID(ctx, store.ID)
	if err != nil {
		return nil, err
	}

	productIDs := make(map[string]struct{})
	variantIDs := make(map[string]struct{})
	distinctRules := make(map[domain.AppliedRule]struct{})
	total := 0.0

	for _, bundle := range bundles {
		apps := MatchBundle(bundle, cart, snaps)

		per := domain.PerBundleResult{BundleID: bundle.ID}
		bundleProducts := make(map[string]struct{})
		bundleVariants := make(map[string]struct{})
		var bundleRules []domain.AppliedRule

		for _, app := range apps {
			if app.DiscountAmount <= 0 {
				continue
			}
			per.Uses++
			per.DiscountAmount += app.DiscountAmount
			bundleRules = append(bundleRules, app.AppliedRule)
			for _, sel := range app.Selection {
				bundleProducts[sel.ProductID] = struct{}{}
				bundleVariants[sel.VariantID] = struct{}{}
			}
		}

		per.Applied = per.Uses > 0
		per.MatchedProductIDs = sortedKeys(bundleProducts)
		result.PerBundle = append(result.PerBundle, per)

		if !per.Applied {
			continue
		}

		for id := range bundleProducts {
			productIDs[id] = struct{}{}
		}
		for id := range bundleVariants {
			variantIDs[id] = struct{}{}
		}
		for _, r := range bundleRules {
			distinctRules[r] = struct{}{}
		}
		total += per.DiscountAmount

		result.Applied.Bundles = append(result.Applied.Bundles, domain.AppliedBundle{
			BundleID:          bundle.ID,
			DiscountAmount:    round2(per.DiscountAmount),
			MatchedProductIDs: per.MatchedProductIDs,
			AppliedRules:      dedupeRules(bundleRules),
		})

		s.recordAudit(ctx, store, bundle, result.CartHash, sortedKeys(bundleVariants))
	}

	result.Applied.MatchedProductIDs = sortedKeys(productIDs)
	result.Applied.MatchedVariantIDs = sortedKeys(variantIDs)
	// Rounded once at the aggregate; per-application amounts stay exact.
	result.Applied.TotalDiscount = round2(total)

	// A single rule survives only when every applied use agrees on one
	// (type, value) pair; the legacy coupon path depends on this.
	if len(distinctRules) == 1 {
		for r := range distinctRules {
			rule := r
			result.Applied.Rule = &rule
		}
	}

	return result, nil
}

// recordAudit appends an audit trail entry for an applied bundle.
// Fire-and-forget: failures are logged and never affect the evaluation.
func (s *EvaluationService) recordAudit(ctx context.Context, store *domain.Store, bundle *domain.Bundle, cartHash string, matchedVariants []string) {
	event := &domain.EvaluationEvent{
		StoreID:           store.ID,
		BundleID:          bundle.ID,
		EventType:         "bundle_applied",
		CartHash:          cartHash,
		MatchedVariantIDs: matchedVariants,
	}
	if err := s.repos.EvaluationEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record evaluation event",
			zap.String("bundle_id", bundle.ID.String()),
			zap.Error(err),
		)
	}
	s.audit.Publish(event)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupeRules(rules []domain.AppliedRule) []domain.AppliedRule {
	seen := make(map[domain.AppliedRule]struct{}, len(rules))
	out := make([]domain.AppliedRule, 0, len(rules))
	for _, r := range rules {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
