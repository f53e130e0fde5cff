package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// CartLine is a raw (variant, quantity) line as received from the storefront.
// Raw input may contain duplicate variant ids and junk lines.
type CartLine struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// NormalizedCart is a canonical cart: unique variant ids, quantities summed,
// sorted ascending by variant id. Build it with NormalizeCart and treat it
// as immutable afterwards; sorting is what makes the hash stable and the
// group-selection tie-breaks deterministic.
type NormalizedCart struct {
	Lines []CartLine
}

// NormalizeCart collapses raw cart lines into a NormalizedCart. Lines with
// an empty variant id or a non-positive quantity are silently dropped;
// duplicates are merged by summing quantities. Never errors.
func NormalizeCart(lines []CartLine) NormalizedCart {
	merged := make(map[string]int)
	for _, l := range lines {
		if l.VariantID == "" || l.Quantity < 1 {
			continue
		}
		merged[l.VariantID] += l.Quantity
	}

	out := make([]CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, CartLine{VariantID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })

	return NormalizedCart{Lines: out}
}

// TotalQuantity returns the summed quantity across all lines
func (c NormalizedCart) TotalQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// VariantIDs returns the variant ids in cart order
func (c NormalizedCart) VariantIDs() []string {
	ids := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.VariantID
	}
	return ids
}

// Quantities returns a fresh variant id -> quantity map. Callers mutate
// their copy freely (the matcher uses it as its availability ledger).
func (c NormalizedCart) Quantities() map[string]int {
	m := make(map[string]int, len(c.Lines))
	for _, l := range c.Lines {
		m[l.VariantID] = l.Quantity
	}
	return m
}

// Hash returns the hex SHA-256 digest of the cart's canonical serialization
// ("variantId:qty|variantId:qty|..."). Two carts with the same content hash
// identically regardless of input line order.
func (c NormalizedCart) Hash() string {
	parts := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		parts[i] = fmt.Sprintf("%s:%d", l.VariantID, l.Quantity)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
