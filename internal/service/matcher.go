package service

import (
	"math"
	"sort"

	"github.com/jafarshop/bundles/internal/domain"
)

// MatchBundle computes the discrete applications of one bundle against a
// normalized cart. Pure: the availability ledger is built fresh from the
// cart on every call and is never shared with other bundles.
func MatchBundle(bundle *domain.Bundle, cart domain.NormalizedCart, snaps map[string]domain.VariantSnapshot) []domain.Application {
	if len(bundle.Components) == 0 {
		return nil
	}

	total := cart.TotalQuantity()
	if total < minTotalQuantity(bundle.Rules) {
		return nil
	}

	avail := cart.Quantities()
	maxUses := maxUsesPerOrder(bundle.Rules)

	if bundle.Rules.Tiered() {
		return matchTiered(bundle, avail, snaps, maxUses)
	}
	return matchUntiered(bundle, avail, snaps, maxUses)
}

// minTotalQuantity is the eligibility floor: the smallest tier's minQty for
// tiered bundles, otherwise the rules' minCartQty (at least 1).
func minTotalQuantity(rules domain.BundleRules) int {
	if rules.Tiered() {
		min := rules.Tiers[0].MinQty
		for _, t := range rules.Tiers[1:] {
			if t.MinQty < min {
				min = t.MinQty
			}
		}
		if min < 1 {
			min = 1
		}
		return min
	}
	if rules.Eligibility.MinCartQty > 1 {
		return rules.Eligibility.MinCartQty
	}
	return 1
}

func maxUsesPerOrder(rules domain.BundleRules) int {
	uses := rules.Limits.MaxUsesPerOrder
	if uses < 1 {
		uses = 1
	}
	if uses > 50 {
		uses = 50
	}
	return uses
}

func matchUntiered(bundle *domain.Bundle, avail map[string]int, snaps map[string]domain.VariantSnapshot, maxUses int) []domain.Application {
	var apps []domain.Application
	rule := domain.AppliedRule{Type: bundle.Rules.DiscountType, Value: bundle.Rules.Value}

	for use := 0; use < maxUses; use++ {
		selection, ok := selectComponents(bundle.Components, nil, bundle.Rules.Eligibility.MustIncludeAllGroups, avail, snaps)
		if !ok {
			break
		}
		deduct(avail, selection)

		subtotal := selectionSubtotal(selection)
		apps = append(apps, domain.Application{
			Selection:      selection,
			Subtotal:       subtotal,
			DiscountAmount: rule.Type.DiscountAmount(subtotal, rule.Value),
			AppliedRule:    rule,
		})
	}

	return apps
}

func matchTiered(bundle *domain.Bundle, avail map[string]int, snaps map[string]domain.VariantSnapshot, maxUses int) []domain.Application {
	var apps []domain.Application
	coverID := coverVariant(bundle)

	for use := 0; use < maxUses; use++ {
		// Each tier is tried independently against the remaining
		// availability; the tier yielding the largest discount wins the
		// use (best value to the customer, not the deepest quantity).
		var best *domain.Application
		for _, tier := range bundle.Rules.Tiers {
			if tier.MinQty < 1 || remainingTotal(avail) < tier.MinQty {
				continue
			}
			override := map[string]int{coverID: tier.MinQty}
			selection, ok := selectComponents(bundle.Components, override, bundle.Rules.Eligibility.MustIncludeAllGroups, avail, snaps)
			if !ok {
				continue
			}
			subtotal := selectionSubtotal(selection)
			app := domain.Application{
				Selection:      selection,
				Subtotal:       subtotal,
				DiscountAmount: tier.DiscountType.DiscountAmount(subtotal, tier.Value),
				AppliedRule:    domain.AppliedRule{Type: tier.DiscountType, Value: tier.Value},
			}
			if best == nil || app.DiscountAmount > best.DiscountAmount {
				best = &app
			}
		}
		if best == nil {
			break
		}
		deduct(avail, best.Selection)
		apps = append(apps, *best)
	}

	return apps
}

// coverVariant resolves the tier-scaled component: the declared cover
// variant when it is itself a component, else the first declared component.
func coverVariant(bundle *domain.Bundle) string {
	if bundle.CoverVariantID != nil {
		for _, c := range bundle.Components {
			if c.VariantID == *bundle.CoverVariantID {
				return c.VariantID
			}
		}
	}
	return bundle.Components[0].VariantID
}

// selectComponents picks one use's worth of components. qtyOverride, when
// set, replaces a component's declared quantity (tier cover scaling).
// Groups are visited in lexicographic key order so selection is
// deterministic for a given cart.
func selectComponents(components []domain.BundleComponent, qtyOverride map[string]int, mustIncludeAllGroups bool, avail map[string]int, snaps map[string]domain.VariantSnapshot) ([]domain.SelectedComponent, bool) {
	groups := make(map[string][]domain.BundleComponent)
	for _, c := range components {
		groups[c.Group] = append(groups[c.Group], c)
	}
	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	cheapest := func(options []domain.BundleComponent, ledger map[string]int) (domain.SelectedComponent, bool) {
		var best domain.SelectedComponent
		bestCost := math.Inf(1)
		found := false
		for _, opt := range options {
			qty := opt.Quantity
			if qtyOverride != nil {
				if o, ok := qtyOverride[opt.VariantID]; ok {
					qty = o
				}
			}
			if qty < 1 {
				continue
			}
			snap, ok := snaps[opt.VariantID]
			if !ok || !snap.Sellable() {
				continue
			}
			if ledger[opt.VariantID] < qty {
				continue
			}
			cost := snap.Price * float64(qty)
			if cost < bestCost {
				bestCost = cost
				best = domain.SelectedComponent{
					VariantID: opt.VariantID,
					ProductID: snap.ProductID,
					Quantity:  qty,
					UnitPrice: snap.Price,
				}
				found = true
			}
		}
		return best, found
	}

	if mustIncludeAllGroups {
		selection := make([]domain.SelectedComponent, 0, len(groupKeys))
		// Selections within one use must not double-spend availability
		// across groups sharing a variant.
		scratch := make(map[string]int, len(avail))
		for k, v := range avail {
			scratch[k] = v
		}
		for _, key := range groupKeys {
			pick, ok := cheapest(groups[key], scratch)
			if !ok {
				return nil, false
			}
			scratch[pick.VariantID] -= pick.Quantity
			selection = append(selection, pick)
		}
		return selection, true
	}

	// Single selection: globally cheapest satisfiable option across groups
	var best domain.SelectedComponent
	bestCost := math.Inf(1)
	found := false
	for _, key := range groupKeys {
		pick, ok := cheapest(groups[key], avail)
		if !ok {
			continue
		}
		cost := pick.UnitPrice * float64(pick.Quantity)
		if cost < bestCost {
			bestCost = cost
			best = pick
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return []domain.SelectedComponent{best}, true
}

func selectionSubtotal(selection []domain.SelectedComponent) float64 {
	subtotal := 0.0
	for _, s := range selection {
		subtotal += s.UnitPrice * float64(s.Quantity)
	}
	return subtotal
}

func deduct(avail map[string]int, selection []domain.SelectedComponent) {
	for _, s := range selection {
		avail[s.VariantID] -= s.Quantity
	}
}

func remainingTotal(avail map[string]int) int {
	total := 0
	for _, qty := range avail {
		if qty > 0 {
			total += qty
		}
	}
	return total
}
