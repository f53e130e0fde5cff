package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
	"github.com/jafarshop/bundles/internal/shopify"
	"github.com/jafarshop/bundles/pkg/errors"
)

// OfferService converges the platform's discount object and the stored
// promotion record to the state an evaluation implies. It holds no locks;
// convergence under concurrent calls relies on the code uniqueness
// constraint and the supersede step being idempotent.
type OfferService struct {
	repos   *repository.Repositories
	gateway PromotionGateway
	cfg     config.PromotionsConfig
	logger  *zap.Logger
	now     func() time.Time
	newCode func() string
}

// NewOfferService creates a new offer reconciliation service
func NewOfferService(repos *repository.Repositories, gateway PromotionGateway, cfg config.PromotionsConfig, logger *zap.Logger) *OfferService {
	s := &OfferService{
		repos:   repos,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	s.newCode = s.generateCode
	return s
}

// IssueOrReuse reconciles the promotion for one cart identity against an
// evaluation result. It never returns an error: every failure surfaces as
// a fail outcome and the cart flow degrades to "no discount applied".
func (s *OfferService) IssueOrReuse(ctx context.Context, store *domain.Store, eval *domain.EvaluationResult, opts IssueOptions) Outcome {
	group := opts.CartKey
	if group == "" {
		group = eval.CartHash
	}
	mode := opts.Mode
	if mode == "" {
		if opts.CartKey != "" {
			mode = ModeIncremental
		} else {
			mode = ModeAuthoritative
		}
	}

	existing, err := s.repos.Promotion.FindActiveByGroup(ctx, store.ID, group)
	if err != nil {
		return s.failOutcome(FailureReasonStorage, err, nil, opts)
	}

	if !eval.HasDiscount() {
		if existing == nil {
			return Outcome{Action: ActionClear}
		}
		return s.clear(ctx, store, existing)
	}

	if existing != nil && s.sameOffer(existing, eval) {
		s.touch(ctx, existing)
		return Outcome{Offer: existing, Action: ActionReuse}
	}

	if existing == nil {
		return s.create(ctx, store, eval, group, opts)
	}

	if mode == ModeAuthoritative {
		// Replace wholesale: retire the old platform object before the
		// fresh create so the store never shows two discounts.
		s.deleteExternal(ctx, store, existing)
		return s.create(ctx, store, eval, group, opts)
	}

	return s.updateIncremental(ctx, store, existing, eval, group, opts)
}

// clear retires the platform object and removes the record for a cart that
// no longer qualifies for any discount.
func (s *OfferService) clear(ctx context.Context, store *domain.Store, existing *domain.PromotionRecord) Outcome {
	s.deleteExternal(ctx, store, existing)
	if err := s.repos.Promotion.DeleteByID(ctx, existing.ID); err != nil {
		return s.failOutcome(FailureReasonStorage, err, nil, IssueOptions{})
	}
	return Outcome{Action: ActionClear}
}

// create issues a fresh platform object and promotion record. Ladder:
// platform create retries floor-on-422 and rename-on-409; record create
// retries regenerate-code-on-conflict, patching the platform object's code
// best-effort when the promotion is code-based.
func (s *OfferService) create(ctx context.Context, store *domain.Store, eval *domain.EvaluationResult, group string, opts IssueOptions) Outcome {
	now := s.now()
	record := s.buildRecord(store, eval, opts, now)

	state := &attemptState{
		code:  record.Code,
		input: s.platformInput(record, now),
	}
	baseTitle := state.input.Title

	var externalID string
	createErr := runWithRetry(state,
		[]retryRule{
			floorDiscountRule(),
			renameRule(func(attempt int) string {
				return fmt.Sprintf("%s #%d", baseTitle, attempt)
			}),
		},
		func(st *attemptState) error {
			id, err := s.createExternal(ctx, store, record.Kind, st.input)
			if err != nil {
				return err
			}
			externalID = id
			return nil
		},
	)
	if createErr != nil {
		return s.failOutcome(s.classify(createErr), createErr, state, opts)
	}

	record.ExternalID = &externalID
	record.DiscountAmount = state.input.Amount

	persistErr := runWithRetry(state,
		[]retryRule{
			recodeRule(s.newCode, func(st *attemptState) {
				if record.Kind != domain.PromotionKindCoupon {
					return
				}
				// The platform object still carries the colliding code;
				// patch it so the storefront and record agree.
				if err := s.gateway.UpdateCoupon(ctx, store, externalID, st.input); err != nil {
					s.logger.Warn("Failed to patch coupon code after conflict", zap.Error(err))
				}
			}),
		},
		func(st *attemptState) error {
			record.Code = st.code
			return s.repos.Promotion.Create(ctx, record)
		},
	)
	if persistErr != nil {
		reason := FailureReasonStorage
		if errors.IsConflict(persistErr) {
			reason = FailureReasonRetriesExhausted
		}
		return s.failOutcome(reason, persistErr, state, opts)
	}

	s.supersedeOthers(ctx, store, group, record.ID)
	return Outcome{Offer: record, Action: ActionCreate}
}

// updateIncremental merges the incoming evaluation into the existing
// record (per-bundle contributions replace, never double-count) and
// updates the platform object in place, falling back to a fresh create
// when the in-place update is not possible.
func (s *OfferService) updateIncremental(ctx context.Context, store *domain.Store, existing *domain.PromotionRecord, eval *domain.EvaluationResult, group string, opts IssueOptions) Outcome {
	merged := mergeContributions(existing, eval)

	if merged.equals(existing) {
		s.touch(ctx, existing)
		return Outcome{Offer: existing, Action: ActionKeep}
	}

	now := s.now()
	existing.BundlesSummary = merged.summary
	existing.AppliedBundleIDs = merged.bundleIDs
	existing.IncludeProductIDs = merged.productIDs
	existing.DiscountAmount = merged.total
	existing.ExpiresAt = now.Add(s.ttl(opts))
	existing.LastSeenAt = now

	if existing.ExternalID != nil {
		state := &attemptState{code: existing.Code, input: s.platformInput(existing, now)}
		baseTitle := state.input.Title
		updateErr := runWithRetry(state,
			[]retryRule{
				floorDiscountRule(),
				renameRule(func(attempt int) string {
					return fmt.Sprintf("%s #%d", baseTitle, attempt)
				}),
			},
			func(st *attemptState) error {
				return s.updateExternal(ctx, store, existing.Kind, *existing.ExternalID, st.input)
			},
		)
		if updateErr == nil {
			existing.DiscountAmount = state.input.Amount
			if err := s.repos.Promotion.Update(ctx, existing); err != nil {
				return s.failOutcome(FailureReasonStorage, err, state, opts)
			}
			s.supersedeOthers(ctx, store, group, existing.ID)
			return Outcome{Offer: existing, Action: ActionUpdate}
		}
		s.logger.Warn("In-place promotion update failed, falling back to create",
			zap.String("promotion_id", existing.ID.String()),
			zap.Error(updateErr),
		)
		s.deleteExternal(ctx, store, existing)
	}

	mergedEval := &domain.EvaluationResult{
		CartHash: existing.CartHash,
		Applied: domain.AppliedSummary{
			Bundles:           appliedFromContributions(merged, eval),
			MatchedProductIDs: merged.productIDs,
			TotalDiscount:     merged.total,
			Rule:              eval.Applied.Rule,
		},
	}
	return s.create(ctx, store, mergedEval, group, opts)
}

func (s *OfferService) createExternal(ctx context.Context, store *domain.Store, kind domain.PromotionKind, in shopify.PromotionInput) (string, error) {
	if kind == domain.PromotionKindCoupon {
		return s.gateway.CreateCoupon(ctx, store, in)
	}
	return s.gateway.CreateSpecialOffer(ctx, store, in)
}

func (s *OfferService) updateExternal(ctx context.Context, store *domain.Store, kind domain.PromotionKind, externalID string, in shopify.PromotionInput) error {
	if kind == domain.PromotionKindCoupon {
		return s.gateway.UpdateCoupon(ctx, store, externalID, in)
	}
	return s.gateway.UpdateSpecialOffer(ctx, store, externalID, in)
}

// deleteExternal retires the platform object best-effort; a remnant object
// expires on its own and must never block local convergence.
func (s *OfferService) deleteExternal(ctx context.Context, store *domain.Store, record *domain.PromotionRecord) {
	if record.ExternalID == nil {
		return
	}
	if err := s.gateway.Delete(ctx, store, *record.ExternalID, record.Kind); err != nil {
		s.logger.Warn("Failed to delete platform discount object",
			zap.String("external_id", *record.ExternalID),
			zap.Error(err),
		)
		// Some discount objects refuse deletion while referenced by an
		// open checkout. Deactivating keeps them out of new carts.
		if rejection, ok := errors.AsPlatformRejection(err); ok && rejection.IsValidationRejection() {
			if deactErr := s.gateway.ChangeStatus(ctx, store, *record.ExternalID, false); deactErr != nil {
				s.logger.Warn("Failed to deactivate platform discount object",
					zap.String("external_id", *record.ExternalID),
					zap.Error(deactErr),
				)
			}
		}
	}
}

// supersedeOthers enforces the single-issued-record invariant after any
// create or update. Idempotent and commutative under concurrent calls.
func (s *OfferService) supersedeOthers(ctx context.Context, store *domain.Store, group string, keepID uuid.UUID) {
	n, err := s.repos.Promotion.MarkSupersededExcept(ctx, store.ID, group, keepID)
	if err != nil {
		s.logger.Warn("Failed to supersede competing promotion records", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Superseded competing promotion records",
			zap.Int64("count", n),
			zap.String("group", group),
		)
	}
}

func (s *OfferService) touch(ctx context.Context, record *domain.PromotionRecord) {
	seenAt := s.now()
	if err := s.repos.Promotion.Touch(ctx, record.ID, seenAt); err != nil {
		s.logger.Warn("Failed to refresh promotion record", zap.Error(err))
		return
	}
	record.LastSeenAt = seenAt
}

func (s *OfferService) buildRecord(store *domain.Store, eval *domain.EvaluationResult, opts IssueOptions, now time.Time) *domain.PromotionRecord {
	kind := domain.PromotionKindOffer
	discountType := domain.DiscountTypeFixed
	if eval.Applied.Rule != nil {
		kind = domain.PromotionKindCoupon
		discountType = eval.Applied.Rule.Type
	}

	bundleIDs := make([]uuid.UUID, 0, len(eval.Applied.Bundles))
	summary := make([]domain.BundleContribution, 0, len(eval.Applied.Bundles))
	for _, b := range eval.Applied.Bundles {
		bundleIDs = append(bundleIDs, b.BundleID)
		summary = append(summary, domain.BundleContribution{
			BundleID:       b.BundleID,
			DiscountAmount: b.DiscountAmount,
		})
	}

	record := &domain.PromotionRecord{
		ID:                uuid.New(),
		StoreID:           store.ID,
		CartHash:          eval.CartHash,
		Code:              s.newCode(),
		Kind:              kind,
		Status:            domain.PromotionStatusIssued,
		DiscountType:      discountType,
		DiscountAmount:    eval.Applied.TotalDiscount,
		IncludeProductIDs: eval.Applied.MatchedProductIDs,
		AppliedBundleIDs:  bundleIDs,
		BundlesSummary:    summary,
		ExpiresAt:         now.Add(s.ttl(opts)),
		IssuedAt:          now,
		LastSeenAt:        now,
	}
	if opts.CartKey != "" {
		cartKey := opts.CartKey
		record.CartKey = &cartKey
	}
	return record
}

func (s *OfferService) platformInput(record *domain.PromotionRecord, now time.Time) shopify.PromotionInput {
	return shopify.PromotionInput{
		Title:             fmt.Sprintf("Bundle savings %s", record.Code),
		Code:              record.Code,
		Amount:            record.DiscountAmount,
		ProductIDs:        record.IncludeProductIDs,
		MinPurchaseAmount: minPurchaseAmount(record.DiscountAmount),
		StartsAt:          now,
		EndsAt:            record.ExpiresAt,
	}
}

func (s *OfferService) ttl(opts IssueOptions) time.Duration {
	hours := opts.TTLHours
	if hours <= 0 {
		hours = s.cfg.DefaultTTLHours
	}
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func (s *OfferService) generateCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	prefix := s.cfg.CodePrefix
	if prefix == "" {
		prefix = "BNDL"
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(prefix), suffix)
}

// sameOffer reports whether the existing record already mirrors the
// evaluation: same discount type, same amount, same product set.
func (s *OfferService) sameOffer(existing *domain.PromotionRecord, eval *domain.EvaluationResult) bool {
	desiredType := domain.DiscountTypeFixed
	if eval.Applied.Rule != nil {
		desiredType = eval.Applied.Rule.Type
	}
	if existing.DiscountType != desiredType {
		return false
	}
	if !amountsEqual(existing.DiscountAmount, eval.Applied.TotalDiscount) {
		// A 422 retry may have issued the floor of the desired amount.
		// The record is still current for an unchanged evaluation.
		floored := math.Floor(eval.Applied.TotalDiscount)
		if floored < 1 || !amountsEqual(existing.DiscountAmount, floored) {
			return false
		}
	}
	return stringSetsEqual(existing.IncludeProductIDs, eval.Applied.MatchedProductIDs)
}

func (s *OfferService) classify(err error) string {
	if rejection, ok := errors.AsPlatformRejection(err); ok {
		if rejection.IsValidationRejection() || rejection.IsNameConflict() {
			return FailureReasonRetriesExhausted
		}
		return FailureReasonPlatformRejected
	}
	if errors.IsConflict(err) {
		return FailureReasonRetriesExhausted
	}
	return FailureReasonPlatformError
}

func (s *OfferService) failOutcome(reason string, err error, state *attemptState, opts IssueOptions) Outcome {
	failure := &Failure{Reason: reason, Detail: err.Error()}
	if opts.Verbose && state != nil {
		failure.Payload = state.input
	}
	s.logger.Warn("Promotion reconciliation failed",
		zap.String("reason", reason),
		zap.Error(err),
	)
	return Outcome{Action: ActionFail, Failure: failure}
}

// minPurchaseAmount keeps the platform's "minimum purchase must exceed the
// discount" validator satisfied while staying as low as possible.
func minPurchaseAmount(discount float64) float64 {
	if discount >= 1000 {
		v := discount * 1.1
		if v < discount+100 {
			v = discount + 100
		}
		return round2(v)
	}
	return round2(discount + 1)
}

func amountsEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

func stringSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

// mergedState is the outcome of an incremental merge, keyed by bundle id
// so a bundle re-applying replaces its own contribution.
type mergedState struct {
	summary    []domain.BundleContribution
	bundleIDs  []uuid.UUID
	productIDs []string
	total      float64
}

func mergeContributions(existing *domain.PromotionRecord, eval *domain.EvaluationResult) mergedState {
	amounts := make(map[uuid.UUID]float64, len(existing.BundlesSummary))
	for _, c := range existing.BundlesSummary {
		amounts[c.BundleID] = c.DiscountAmount
	}
	for _, b := range eval.Applied.Bundles {
		amounts[b.BundleID] = b.DiscountAmount
	}

	ids := make([]uuid.UUID, 0, len(amounts))
	for id := range amounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	total := 0.0
	summary := make([]domain.BundleContribution, 0, len(ids))
	for _, id := range ids {
		total += amounts[id]
		summary = append(summary, domain.BundleContribution{BundleID: id, DiscountAmount: amounts[id]})
	}

	products := make(map[string]struct{}, len(existing.IncludeProductIDs)+len(eval.Applied.MatchedProductIDs))
	for _, p := range existing.IncludeProductIDs {
		products[p] = struct{}{}
	}
	for _, p := range eval.Applied.MatchedProductIDs {
		products[p] = struct{}{}
	}

	return mergedState{
		summary:    summary,
		bundleIDs:  ids,
		productIDs: sortedKeys(products),
		total:      round2(total),
	}
}

func (m mergedState) equals(existing *domain.PromotionRecord) bool {
	if !amountsEqual(m.total, existing.DiscountAmount) {
		// Tolerate a record whose issued amount was floored on a 422.
		floored := math.Floor(m.total)
		if floored < 1 || !amountsEqual(existing.DiscountAmount, floored) {
			return false
		}
	}
	if !stringSetsEqual(m.productIDs, existing.IncludeProductIDs) {
		return false
	}
	if len(m.summary) != len(existing.BundlesSummary) {
		return false
	}
	amounts := make(map[uuid.UUID]float64, len(existing.BundlesSummary))
	for _, c := range existing.BundlesSummary {
		amounts[c.BundleID] = c.DiscountAmount
	}
	for _, c := range m.summary {
		prev, ok := amounts[c.BundleID]
		if !ok || !amountsEqual(prev, c.DiscountAmount) {
			return false
		}
	}
	return true
}

func appliedFromContributions(m mergedState, eval *domain.EvaluationResult) []domain.AppliedBundle {
	rulesByBundle := make(map[uuid.UUID][]domain.AppliedRule, len(eval.Applied.Bundles))
	for _, b := range eval.Applied.Bundles {
		rulesByBundle[b.BundleID] = b.AppliedRules
	}

	out := make([]domain.AppliedBundle, 0, len(m.summary))
	for _, c := range m.summary {
		out = append(out, domain.AppliedBundle{
			BundleID:          c.BundleID,
			DiscountAmount:    c.DiscountAmount,
			MatchedProductIDs: m.productIDs,
			AppliedRules:      rulesByBundle[c.BundleID],
		})
	}
	return out
}
