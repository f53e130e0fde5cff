package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
	"github.com/jafarshop/bundles/internal/service"
	"github.com/jafarshop/bundles/internal/shopify"
	"github.com/jafarshop/bundles/pkg/errors"
)

type mockPromotionRepo struct {
	existing   *domain.PromotionRecord
	created    []*domain.PromotionRecord
	updated    []*domain.PromotionRecord
	deleted    []uuid.UUID
	touched    int
	superseded int
	createErrs []error
	findErr    error
}

func (m *mockPromotionRepo) Create(_ context.Context, record *domain.PromotionRecord) error {
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	m.created = append(m.created, record)
	return nil
}

func (m *mockPromotionRepo) GetByID(context.Context, uuid.UUID) (*domain.PromotionRecord, error) {
	return nil, nil
}

func (m *mockPromotionRepo) GetByCode(context.Context, uuid.UUID, string) (*domain.PromotionRecord, error) {
	return nil, nil
}

func (m *mockPromotionRepo) FindActiveByGroup(context.Context, uuid.UUID, string) (*domain.PromotionRecord, error) {
	return m.existing, m.findErr
}

func (m *mockPromotionRepo) Update(_ context.Context, record *domain.PromotionRecord) error {
	m.updated = append(m.updated, record)
	return nil
}

func (m *mockPromotionRepo) Touch(context.Context, uuid.UUID, time.Time) error {
	m.touched++
	return nil
}

func (m *mockPromotionRepo) UpdateStatus(context.Context, uuid.UUID, domain.PromotionStatus) error {
	return nil
}

func (m *mockPromotionRepo) MarkSupersededExcept(context.Context, uuid.UUID, string, uuid.UUID) (int64, error) {
	m.superseded++
	return 0, nil
}

func (m *mockPromotionRepo) ExpireOverdue(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *mockPromotionRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockGateway struct {
	createdCoupons  []shopify.PromotionInput
	createdOffers   []shopify.PromotionInput
	updatedCoupons  []shopify.PromotionInput
	updatedOffers   []shopify.PromotionInput
	deleted         []string
	deactivated     []string
	createErrs      []error
	alwaysCreateErr error
	deleteErr       error
}

func (m *mockGateway) nextCreateErr() error {
	if m.alwaysCreateErr != nil {
		return m.alwaysCreateErr
	}
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return err
	}
	return nil
}

func (m *mockGateway) CreateCoupon(_ context.Context, _ *domain.Store, in shopify.PromotionInput) (string, error) {
	m.createdCoupons = append(m.createdCoupons, in)
	if err := m.nextCreateErr(); err != nil {
		return "", err
	}
	return "gid://shopify/DiscountCodeNode/1", nil
}

func (m *mockGateway) UpdateCoupon(_ context.Context, _ *domain.Store, _ string, in shopify.PromotionInput) error {
	m.updatedCoupons = append(m.updatedCoupons, in)
	return nil
}

func (m *mockGateway) CreateSpecialOffer(_ context.Context, _ *domain.Store, in shopify.PromotionInput) (string, error) {
	m.createdOffers = append(m.createdOffers, in)
	if err := m.nextCreateErr(); err != nil {
		return "", err
	}
	return "gid://shopify/DiscountAutomaticNode/1", nil
}

func (m *mockGateway) UpdateSpecialOffer(_ context.Context, _ *domain.Store, _ string, in shopify.PromotionInput) error {
	m.updatedOffers = append(m.updatedOffers, in)
	return nil
}

func (m *mockGateway) ChangeStatus(_ context.Context, _ *domain.Store, externalID string, active bool) error {
	if !active {
		m.deactivated = append(m.deactivated, externalID)
	}
	return nil
}

func (m *mockGateway) Delete(_ context.Context, _ *domain.Store, externalID string, _ domain.PromotionKind) error {
	m.deleted = append(m.deleted, externalID)
	return m.deleteErr
}

func offerFixture(repo *mockPromotionRepo, gateway *mockGateway) *service.OfferService {
	repos := &repository.Repositories{Promotion: repo}
	cfg := config.PromotionsConfig{DefaultTTLHours: 24, CodePrefix: "BNDL"}
	return service.NewOfferService(repos, gateway, cfg, zap.NewNop())
}

func singleRuleEval(bundleID uuid.UUID, amount float64, productIDs ...string) *domain.EvaluationResult {
	rule := domain.AppliedRule{Type: domain.DiscountTypePercentage, Value: 10}
	return &domain.EvaluationResult{
		CartHash: "cart-hash-1",
		Applied: domain.AppliedSummary{
			Bundles: []domain.AppliedBundle{{
				BundleID:          bundleID,
				DiscountAmount:    amount,
				MatchedProductIDs: productIDs,
				AppliedRules:      []domain.AppliedRule{rule},
			}},
			MatchedProductIDs: productIDs,
			TotalDiscount:     amount,
			Rule:              &rule,
		},
	}
}

func issuedRecord(amount float64, productIDs ...string) *domain.PromotionRecord {
	ext := "gid://shopify/DiscountCodeNode/old"
	return &domain.PromotionRecord{
		ID:                uuid.New(),
		StoreID:           uuid.New(),
		CartHash:          "cart-hash-1",
		Code:              "BNDL-EXISTING",
		ExternalID:        &ext,
		Kind:              domain.PromotionKindCoupon,
		Status:            domain.PromotionStatusIssued,
		DiscountType:      domain.DiscountTypePercentage,
		DiscountAmount:    amount,
		IncludeProductIDs: productIDs,
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	}
}

func TestIssueOrReuse_CreatesCouponForSingleRule(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionCreate, outcome.Action)
	require.Nil(t, outcome.Failure)
	require.NotNil(t, outcome.Offer)
	require.Equal(t, domain.PromotionKindCoupon, outcome.Offer.Kind)
	require.True(t, strings.HasPrefix(outcome.Offer.Code, "BNDL-"))
	require.NotNil(t, outcome.Offer.ExternalID)

	require.Len(t, gateway.createdCoupons, 1)
	require.Empty(t, gateway.createdOffers)
	require.InDelta(t, 16.0, gateway.createdCoupons[0].MinPurchaseAmount, 1e-9)

	require.Len(t, repo.created, 1)
	require.Equal(t, 1, repo.superseded)
}

func TestIssueOrReuse_CreatesOfferForMixedRules(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	eval := singleRuleEval(uuid.New(), 20, "p-1")
	eval.Applied.Rule = nil

	outcome := svc.IssueOrReuse(context.Background(), store, eval, service.IssueOptions{})

	require.Equal(t, service.ActionCreate, outcome.Action)
	require.Equal(t, domain.PromotionKindOffer, outcome.Offer.Kind)
	require.Len(t, gateway.createdOffers, 1)
	require.Empty(t, gateway.createdCoupons)
}

func TestIssueOrReuse_MinPurchaseForLargeDiscount(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 2000, "p-1"), service.IssueOptions{})

	require.Len(t, gateway.createdCoupons, 1)
	// max(2000*1.1, 2000+100) = 2200
	require.InDelta(t, 2200.0, gateway.createdCoupons[0].MinPurchaseAmount, 1e-9)
}

func TestIssueOrReuse_ReusesMatchingRecord(t *testing.T) {
	existing := issuedRecord(15, "p-1")
	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionReuse, outcome.Action)
	require.Same(t, existing, outcome.Offer)
	require.Equal(t, 1, repo.touched)
	require.Empty(t, gateway.createdCoupons)
	require.Empty(t, repo.created)
}

func TestIssueOrReuse_ClearsWhenNoDiscount(t *testing.T) {
	existing := issuedRecord(15, "p-1")
	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	eval := &domain.EvaluationResult{CartHash: "cart-hash-1"}

	outcome := svc.IssueOrReuse(context.Background(), store, eval, service.IssueOptions{})

	require.Equal(t, service.ActionClear, outcome.Action)
	require.Equal(t, []string{*existing.ExternalID}, gateway.deleted)
	require.Equal(t, []uuid.UUID{existing.ID}, repo.deleted)
}

func TestIssueOrReuse_ClearWithoutRecordIsNoop(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, &domain.EvaluationResult{CartHash: "h"}, service.IssueOptions{})

	require.Equal(t, service.ActionClear, outcome.Action)
	require.Empty(t, gateway.deleted)
	require.Empty(t, repo.deleted)
}

func TestIssueOrReuse_ClearDeactivatesWhenDeleteRejected(t *testing.T) {
	existing := issuedRecord(15, "p-1")
	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{
		deleteErr: &errors.ErrPlatformRejection{StatusCode: 422, Message: "discount is in use"},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	outcome := svc.IssueOrReuse(context.Background(), store, &domain.EvaluationResult{CartHash: "cart-hash-1"}, service.IssueOptions{})

	require.Equal(t, service.ActionClear, outcome.Action)
	require.Equal(t, []string{*existing.ExternalID}, gateway.deactivated)
	require.Equal(t, []uuid.UUID{existing.ID}, repo.deleted)
}

func TestIssueOrReuse_FloorsDiscountOn422(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		createErrs: []error{&errors.ErrPlatformRejection{StatusCode: 422, Message: "amount must be an integer"}},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15.5, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionCreate, outcome.Action)
	require.Len(t, gateway.createdCoupons, 2)
	require.InDelta(t, 15.5, gateway.createdCoupons[0].Amount, 1e-9)
	require.InDelta(t, 15.0, gateway.createdCoupons[1].Amount, 1e-9)
	require.InDelta(t, 15.0, outcome.Offer.DiscountAmount, 1e-9)
}

func TestIssueOrReuse_ReusesFlooredRecordOnReplay(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		createErrs: []error{&errors.ErrPlatformRejection{StatusCode: 422, Message: "amount must be an integer"}},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}
	bundleID := uuid.New()

	first := svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleID, 15.5, "p-1"), service.IssueOptions{})
	require.Equal(t, service.ActionCreate, first.Action)
	require.InDelta(t, 15.0, first.Offer.DiscountAmount, 1e-9)

	// An unchanged cart syncs again: the record holds the floored amount
	// but must still count as current, not trigger a replace.
	repo.existing = first.Offer
	second := svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleID, 15.5, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionReuse, second.Action)
	require.Same(t, first.Offer, second.Offer)
	require.Len(t, gateway.createdCoupons, 2)
	require.Empty(t, gateway.deleted)
	require.Equal(t, 1, repo.touched)
}

func TestIssueOrReuse_FloorAppliesOnlyOnce(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		alwaysCreateErr: &errors.ErrPlatformRejection{StatusCode: 422, Message: "rejected"},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15.5, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionFail, outcome.Action)
	// Original attempt plus one floored retry, then the ladder stops
	require.Len(t, gateway.createdCoupons, 2)
	require.Empty(t, repo.created)
}

func TestIssueOrReuse_RenamesOn409(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		createErrs: []error{&errors.ErrPlatformRejection{StatusCode: 409, Code: "TAKEN"}},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionCreate, outcome.Action)
	require.Len(t, gateway.createdCoupons, 2)
	require.Equal(t, gateway.createdCoupons[0].Title+" #1", gateway.createdCoupons[1].Title)
}

func TestIssueOrReuse_ExhaustsRetriesOnPersistent409(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		alwaysCreateErr: &errors.ErrPlatformRejection{StatusCode: 409, Code: "TAKEN"},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionFail, outcome.Action)
	require.NotNil(t, outcome.Failure)
	require.Equal(t, service.FailureReasonRetriesExhausted, outcome.Failure.Reason)
	require.Len(t, gateway.createdCoupons, 6)
	require.Empty(t, repo.created)
}

func TestIssueOrReuse_UnretryablePlatformRejectionFails(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		alwaysCreateErr: &errors.ErrPlatformRejection{StatusCode: 500, Message: "internal"},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionFail, outcome.Action)
	require.Equal(t, service.FailureReasonPlatformRejected, outcome.Failure.Reason)
	require.Len(t, gateway.createdCoupons, 1)
}

func TestIssueOrReuse_VerboseFailureCarriesPayload(t *testing.T) {
	repo := &mockPromotionRepo{}
	gateway := &mockGateway{
		alwaysCreateErr: &errors.ErrPlatformRejection{StatusCode: 500, Message: "internal"},
	}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	terse := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})
	require.Nil(t, terse.Failure.Payload)

	verbose := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{Verbose: true})
	require.NotNil(t, verbose.Failure.Payload)
}

func TestIssueOrReuse_RegeneratesCodeOnStorageConflict(t *testing.T) {
	repo := &mockPromotionRepo{
		createErrs: []error{&errors.ErrConflict{Message: "code exists"}},
	}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionCreate, outcome.Action)
	require.Len(t, repo.created, 1)
	// The platform object was patched to the regenerated code
	require.Len(t, gateway.updatedCoupons, 1)
	require.Equal(t, outcome.Offer.Code, gateway.updatedCoupons[0].Code)
	require.NotEqual(t, gateway.createdCoupons[0].Code, outcome.Offer.Code)
}

func TestIssueOrReuse_AuthoritativeReplacesChangedOffer(t *testing.T) {
	existing := issuedRecord(10, "p-1")
	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 25, "p-1", "p-2"), service.IssueOptions{})

	require.Equal(t, service.ActionCreate, outcome.Action)
	require.Equal(t, []string{*existing.ExternalID}, gateway.deleted)
	require.Len(t, gateway.createdCoupons, 1)
	require.InDelta(t, 25.0, gateway.createdCoupons[0].Amount, 1e-9)
	require.Equal(t, 1, repo.superseded)
}

func TestIssueOrReuse_IncrementalMergesContributions(t *testing.T) {
	bundleA := uuid.New()
	bundleB := uuid.New()

	cartKey := "cart-key-1"
	existing := issuedRecord(10, "p-1")
	existing.CartKey = &cartKey
	existing.BundlesSummary = []domain.BundleContribution{{BundleID: bundleA, DiscountAmount: 10}}
	existing.AppliedBundleIDs = []uuid.UUID{bundleA}

	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleB, 5, "p-2"), service.IssueOptions{CartKey: cartKey})

	require.Equal(t, service.ActionUpdate, outcome.Action)
	require.InDelta(t, 15.0, outcome.Offer.DiscountAmount, 1e-9)
	require.ElementsMatch(t, []string{"p-1", "p-2"}, outcome.Offer.IncludeProductIDs)
	require.Len(t, outcome.Offer.BundlesSummary, 2)

	require.Len(t, gateway.updatedCoupons, 1)
	require.InDelta(t, 15.0, gateway.updatedCoupons[0].Amount, 1e-9)
	require.Len(t, repo.updated, 1)
	require.Equal(t, 1, repo.superseded)
	require.Empty(t, gateway.createdCoupons)
}

func TestIssueOrReuse_IncrementalReplayKeeps(t *testing.T) {
	bundleA := uuid.New()
	bundleB := uuid.New()

	cartKey := "cart-key-1"
	existing := issuedRecord(15, "p-1", "p-2")
	existing.CartKey = &cartKey
	existing.BundlesSummary = []domain.BundleContribution{
		{BundleID: bundleA, DiscountAmount: 10},
		{BundleID: bundleB, DiscountAmount: 5},
	}

	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	// Bundle A re-applies with its unchanged contribution
	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleA, 10, "p-1"), service.IssueOptions{CartKey: cartKey})

	require.Equal(t, service.ActionKeep, outcome.Action)
	require.Equal(t, 1, repo.touched)
	require.Empty(t, gateway.updatedCoupons)
	require.Empty(t, gateway.createdCoupons)
	require.Empty(t, repo.updated)
}

func TestIssueOrReuse_IncrementalReplayKeepsFlooredRecord(t *testing.T) {
	bundleA := uuid.New()
	bundleB := uuid.New()

	cartKey := "cart-key-1"
	// Issued amount was floored from 15.5 to 15 on a 422; contributions
	// keep their fractional values.
	existing := issuedRecord(15, "p-1", "p-2")
	existing.CartKey = &cartKey
	existing.BundlesSummary = []domain.BundleContribution{
		{BundleID: bundleA, DiscountAmount: 10.5},
		{BundleID: bundleB, DiscountAmount: 5},
	}

	repo := &mockPromotionRepo{existing: existing}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: existing.StoreID}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleA, 10.5, "p-1"), service.IssueOptions{CartKey: cartKey})

	require.Equal(t, service.ActionKeep, outcome.Action)
	require.Equal(t, 1, repo.touched)
	require.Empty(t, gateway.updatedCoupons)
	require.Empty(t, repo.updated)
}

func TestIssueOrReuse_StorageFailureIsNonThrowing(t *testing.T) {
	repo := &mockPromotionRepo{findErr: context.DeadlineExceeded}
	gateway := &mockGateway{}
	svc := offerFixture(repo, gateway)
	store := &domain.Store{ID: uuid.New()}

	outcome := svc.IssueOrReuse(context.Background(), store, singleRuleEval(uuid.New(), 15, "p-1"), service.IssueOptions{})

	require.Equal(t, service.ActionFail, outcome.Action)
	require.Equal(t, service.FailureReasonStorage, outcome.Failure.Reason)
}

// memoryPromotionRepo is a mutex-guarded in-memory store for interleaved
// reconciliations. findGate, when set, holds FindActiveByGroup until every
// caller has looked up, so all callers observe the pre-create state.
type memoryPromotionRepo struct {
	mu       sync.Mutex
	records  []*domain.PromotionRecord
	findGate *sync.WaitGroup
}

func (m *memoryPromotionRepo) Create(_ context.Context, record *domain.PromotionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.StoreID == record.StoreID && r.Code == record.Code {
			return &errors.ErrConflict{Message: "duplicate code"}
		}
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memoryPromotionRepo) GetByID(context.Context, uuid.UUID) (*domain.PromotionRecord, error) {
	return nil, nil
}

func (m *memoryPromotionRepo) GetByCode(context.Context, uuid.UUID, string) (*domain.PromotionRecord, error) {
	return nil, nil
}

func (m *memoryPromotionRepo) FindActiveByGroup(_ context.Context, storeID uuid.UUID, group string) (*domain.PromotionRecord, error) {
	m.mu.Lock()
	var found *domain.PromotionRecord
	for _, r := range m.records {
		if r.StoreID != storeID || r.Group() != group || r.Status != domain.PromotionStatusIssued {
			continue
		}
		if found == nil || r.LastSeenAt.After(found.LastSeenAt) {
			found = r
		}
	}
	m.mu.Unlock()
	if gate := m.findGate; gate != nil {
		gate.Done()
		gate.Wait()
	}
	return found, nil
}

func (m *memoryPromotionRepo) Update(context.Context, *domain.PromotionRecord) error {
	return nil
}

func (m *memoryPromotionRepo) Touch(_ context.Context, id uuid.UUID, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.LastSeenAt = seenAt
		}
	}
	return nil
}

func (m *memoryPromotionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.PromotionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.Status = status
		}
	}
	return nil
}

func (m *memoryPromotionRepo) MarkSupersededExcept(_ context.Context, storeID uuid.UUID, group string, keepID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.StoreID != storeID || r.Group() != group || r.ID == keepID {
			continue
		}
		if r.Status == domain.PromotionStatusIssued {
			r.Status = domain.PromotionStatusSuperseded
			n++
		}
	}
	return n, nil
}

func (m *memoryPromotionRepo) ExpireOverdue(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryPromotionRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *memoryPromotionRepo) issuedCount(storeID uuid.UUID, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.StoreID == storeID && r.Group() == group && r.Status == domain.PromotionStatusIssued {
			n++
		}
	}
	return n
}

type concurrentGateway struct {
	mu      sync.Mutex
	creates int
}

func (g *concurrentGateway) CreateCoupon(context.Context, *domain.Store, shopify.PromotionInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	return "gid://shopify/DiscountCodeNode/" + uuid.NewString(), nil
}

func (g *concurrentGateway) UpdateCoupon(context.Context, *domain.Store, string, shopify.PromotionInput) error {
	return nil
}

func (g *concurrentGateway) CreateSpecialOffer(context.Context, *domain.Store, shopify.PromotionInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	return "gid://shopify/DiscountAutomaticNode/" + uuid.NewString(), nil
}

func (g *concurrentGateway) UpdateSpecialOffer(context.Context, *domain.Store, string, shopify.PromotionInput) error {
	return nil
}

func (g *concurrentGateway) ChangeStatus(context.Context, *domain.Store, string, bool) error {
	return nil
}

func (g *concurrentGateway) Delete(context.Context, *domain.Store, string, domain.PromotionKind) error {
	return nil
}

func TestIssueOrReuse_ConcurrentSyncsConvergeOnSingleIssuedRecord(t *testing.T) {
	gate := &sync.WaitGroup{}
	gate.Add(2)
	repo := &memoryPromotionRepo{findGate: gate}
	gateway := &concurrentGateway{}
	repos := &repository.Repositories{Promotion: repo}
	cfg := config.PromotionsConfig{DefaultTTLHours: 24, CodePrefix: "BNDL"}
	svc := service.NewOfferService(repos, gateway, cfg, zap.NewNop())
	store := &domain.Store{ID: uuid.New()}
	bundleID := uuid.New()

	// Both syncs look up before either create lands, the worst interleaving.
	var wg sync.WaitGroup
	outcomes := make([]service.Outcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleID, 15, "p-1"), service.IssueOptions{})
		}(i)
	}
	wg.Wait()

	require.Equal(t, service.ActionCreate, outcomes[0].Action)
	require.Equal(t, service.ActionCreate, outcomes[1].Action)
	require.Equal(t, 2, gateway.creates)
	require.LessOrEqual(t, repo.issuedCount(store.ID, "cart-hash-1"), 1)

	// A follow-up sync settles on exactly one issued record.
	repo.findGate = nil
	final := svc.IssueOrReuse(context.Background(), store, singleRuleEval(bundleID, 15, "p-1"), service.IssueOptions{})

	require.True(t, final.Action == service.ActionReuse || final.Action == service.ActionCreate)
	require.Equal(t, 1, repo.issuedCount(store.ID, "cart-hash-1"))
}
