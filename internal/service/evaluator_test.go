package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
	"github.com/jafarshop/bundles/internal/service"
)

type mockBundleRepo struct {
	active []*domain.Bundle
}

func (m *mockBundleRepo) Create(context.Context, *domain.Bundle) error { return nil }
func (m *mockBundleRepo) GetByID(context.Context, uuid.UUID) (*domain.Bundle, error) {
	return nil, nil
}
func (m *mockBundleRepo) ListByStoreID(context.Context, uuid.UUID, int, int) ([]*domain.Bundle, error) {
	return m.active, nil
}
func (m *mockBundleRepo) ListActiveByStoreID(context.Context, uuid.UUID) ([]*domain.Bundle, error) {
	return m.active, nil
}
func (m *mockBundleRepo) Update(context.Context, *domain.Bundle) error { return nil }
func (m *mockBundleRepo) UpdateStatus(context.Context, uuid.UUID, domain.BundleStatus) error {
	return nil
}
func (m *mockBundleRepo) SoftDelete(context.Context, uuid.UUID) error { return nil }

type mockEventRepo struct {
	created int
	events  []*domain.EvaluationEvent
}

func (m *mockEventRepo) Create(_ context.Context, event *domain.EvaluationEvent) error {
	m.created++
	m.events = append(m.events, event)
	return nil
}
func (m *mockEventRepo) ListByBundleID(context.Context, uuid.UUID, int) ([]*domain.EvaluationEvent, error) {
	return nil, nil
}

type countingPublisher struct {
	published int
}

func (p *countingPublisher) Publish(*domain.EvaluationEvent) { p.published++ }
func (p *countingPublisher) Close() error                    { return nil }

func percentBundle(value float64, variantID string) *domain.Bundle {
	return &domain.Bundle{
		ID:     uuid.New(),
		Status: domain.BundleStatusActive,
		Components: []domain.BundleComponent{
			{VariantID: variantID, Quantity: 1, Group: "main"},
		},
		Rules: domain.BundleRules{
			DiscountType: domain.DiscountTypePercentage,
			Value:        value,
		},
	}
}

func evaluatorFixture(bundles ...*domain.Bundle) (*service.EvaluationService, *mockEventRepo, *countingPublisher) {
	events := &mockEventRepo{}
	publisher := &countingPublisher{}
	repos := &repository.Repositories{
		Bundle:          &mockBundleRepo{active: bundles},
		EvaluationEvent: events,
	}
	return service.NewEvaluationService(repos, nil, publisher, zap.NewNop()), events, publisher
}

func TestEvaluate_SingleRuleSurvives(t *testing.T) {
	svc, events, publisher := evaluatorFixture(
		percentBundle(10, "v-1"),
		percentBundle(10, "v-2"),
	)
	store := &domain.Store{ID: uuid.New()}
	lines := []domain.CartLine{
		{VariantID: "v-1", Quantity: 1},
		{VariantID: "v-2", Quantity: 1},
	}
	snaps := snapsFor(map[string]float64{"v-1": 100, "v-2": 50})

	result, err := svc.Evaluate(context.Background(), store, lines, snaps)
	require.NoError(t, err)

	require.True(t, result.HasDiscount())
	require.InDelta(t, 15.0, result.Applied.TotalDiscount, 1e-9)
	require.NotNil(t, result.Applied.Rule)
	require.Equal(t, domain.AppliedRule{Type: domain.DiscountTypePercentage, Value: 10}, *result.Applied.Rule)
	require.ElementsMatch(t, []string{"prod-v-1", "prod-v-2"}, result.Applied.MatchedProductIDs)

	// One audit event per applied bundle, on both sinks
	require.Equal(t, 2, events.created)
	require.Equal(t, 2, publisher.published)
}

func TestEvaluate_MixedRulesYieldNoSingleRule(t *testing.T) {
	svc, _, _ := evaluatorFixture(
		percentBundle(10, "v-1"),
		percentBundle(25, "v-2"),
	)
	store := &domain.Store{ID: uuid.New()}
	lines := []domain.CartLine{
		{VariantID: "v-1", Quantity: 1},
		{VariantID: "v-2", Quantity: 1},
	}
	snaps := snapsFor(map[string]float64{"v-1": 100, "v-2": 100})

	result, err := svc.Evaluate(context.Background(), store, lines, snaps)
	require.NoError(t, err)

	require.InDelta(t, 35.0, result.Applied.TotalDiscount, 1e-9)
	require.Nil(t, result.Applied.Rule)
}

func TestEvaluate_RoundsAggregateToCents(t *testing.T) {
	svc, _, _ := evaluatorFixture(
		percentBundle(10, "v-1"),
		percentBundle(10, "v-2"),
	)
	store := &domain.Store{ID: uuid.New()}
	lines := []domain.CartLine{
		{VariantID: "v-1", Quantity: 1},
		{VariantID: "v-2", Quantity: 1},
	}
	snaps := snapsFor(map[string]float64{"v-1": 10.99, "v-2": 10.99})

	result, err := svc.Evaluate(context.Background(), store, lines, snaps)
	require.NoError(t, err)

	require.InDelta(t, 2.2, result.Applied.TotalDiscount, 1e-9)
}

func TestEvaluate_NoMatchNoDiscount(t *testing.T) {
	svc, events, _ := evaluatorFixture(percentBundle(10, "v-1"))
	store := &domain.Store{ID: uuid.New()}
	lines := []domain.CartLine{{VariantID: "v-other", Quantity: 1}}
	snaps := snapsFor(map[string]float64{"v-other": 100})

	result, err := svc.Evaluate(context.Background(), store, lines, snaps)
	require.NoError(t, err)

	require.False(t, result.HasDiscount())
	require.Zero(t, result.Applied.TotalDiscount)
	require.Empty(t, result.Applied.Bundles)
	require.Zero(t, events.created)

	// Per-bundle breakdown still reports the miss
	require.Len(t, result.PerBundle, 1)
	require.False(t, result.PerBundle[0].Applied)
}

func TestEvaluate_CartHashStable(t *testing.T) {
	svc, _, _ := evaluatorFixture()
	store := &domain.Store{ID: uuid.New()}
	snaps := snapsFor(map[string]float64{"v-1": 10, "v-2": 20})

	a, err := svc.Evaluate(context.Background(), store, []domain.CartLine{
		{VariantID: "v-1", Quantity: 1},
		{VariantID: "v-2", Quantity: 2},
	}, snaps)
	require.NoError(t, err)

	b, err := svc.Evaluate(context.Background(), store, []domain.CartLine{
		{VariantID: "v-2", Quantity: 2},
		{VariantID: "v-1", Quantity: 1},
	}, snaps)
	require.NoError(t, err)

	require.Equal(t, a.CartHash, b.CartHash)
}
