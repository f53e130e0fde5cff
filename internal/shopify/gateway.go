package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
)

// PromotionInput is the platform-facing shape of a discount object. The
// reconciler fills it from a PromotionRecord; Code is ignored for special
// offers (automatic discounts carry no code).
type PromotionInput struct {
	Title             string
	Code              string
	Amount            float64
	ProductIDs        []string
	MinPurchaseAmount float64
	StartsAt          time.Time
	EndsAt            time.Time
}

// Gateway issues, updates, and retires Shopify discount objects. Coupons
// map to code-based basic discounts, special offers to automatic basic
// discounts.
type Gateway struct {
	client *Client
	logger *zap.Logger
}

// NewGateway creates a new Shopify promotion gateway
func NewGateway(client *Client, logger *zap.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger,
	}
}

func productGID(productID string) string {
	// Storefront webhooks hand us bare numeric ids; Admin API wants GIDs.
	if len(productID) > 4 && productID[:4] == "gid:" {
		return productID
	}
	return "gid://shopify/Product/" + productID
}

func variantGID(variantID string) string {
	if len(variantID) > 4 && variantID[:4] == "gid:" {
		return variantID
	}
	return "gid://shopify/ProductVariant/" + variantID
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func (g *Gateway) discountInput(in PromotionInput, withCode bool) map[string]interface{} {
	productGIDs := make([]string, len(in.ProductIDs))
	for i, id := range in.ProductIDs {
		productGIDs[i] = productGID(id)
	}

	input := map[string]interface{}{
		"title":    in.Title,
		"startsAt": in.StartsAt.UTC().Format(time.RFC3339),
		"endsAt":   in.EndsAt.UTC().Format(time.RFC3339),
		"customerGets": map[string]interface{}{
			"value": map[string]interface{}{
				"discountAmount": map[string]interface{}{
					"amount":            formatAmount(in.Amount),
					"appliesOnEachItem": false,
				},
			},
			"items": map[string]interface{}{
				"products": map[string]interface{}{
					"productsToAdd": productGIDs,
				},
			},
		},
		"combinesWith": map[string]interface{}{
			"productDiscounts":  false,
			"orderDiscounts":    false,
			"shippingDiscounts": true,
		},
	}
	if in.MinPurchaseAmount > 0 {
		input["minimumRequirement"] = map[string]interface{}{
			"subtotal": map[string]interface{}{
				"greaterThanOrEqualToSubtotal": formatAmount(in.MinPurchaseAmount),
			},
		}
	}
	if withCode {
		input["code"] = in.Code
		input["customerSelection"] = map[string]interface{}{"all": true}
		input["appliesOncePerCustomer"] = true
		input["usageLimit"] = 1
	}
	return input
}

func (g *Gateway) CreateCoupon(ctx context.Context, store *domain.Store, in PromotionInput) (string, error) {
	variables := map[string]interface{}{
		"basicCodeDiscount": g.discountInput(in, true),
	}
	return g.runCreate(ctx, store, DiscountCodeCreateMutation, "discountCodeBasicCreate", variables)
}

func (g *Gateway) UpdateCoupon(ctx context.Context, store *domain.Store, externalID string, in PromotionInput) error {
	variables := map[string]interface{}{
		"id":                externalID,
		"basicCodeDiscount": g.discountInput(in, true),
	}
	_, err := g.runCreate(ctx, store, DiscountCodeUpdateMutation, "discountCodeBasicUpdate", variables)
	return err
}

func (g *Gateway) CreateSpecialOffer(ctx context.Context, store *domain.Store, in PromotionInput) (string, error) {
	variables := map[string]interface{}{
		"automaticBasicDiscount": g.discountInput(in, false),
	}
	return g.runCreate(ctx, store, DiscountAutomaticCreateMutation, "discountAutomaticBasicCreate", variables)
}

func (g *Gateway) UpdateSpecialOffer(ctx context.Context, store *domain.Store, externalID string, in PromotionInput) error {
	variables := map[string]interface{}{
		"id":                     externalID,
		"automaticBasicDiscount": g.discountInput(in, false),
	}
	_, err := g.runCreate(ctx, store, DiscountAutomaticUpdateMutation, "discountAutomaticBasicUpdate", variables)
	return err
}

// ChangeStatus activates or deactivates a code-based discount. Automatic
// discounts have no activation toggle; callers delete them instead.
func (g *Gateway) ChangeStatus(ctx context.Context, store *domain.Store, externalID string, active bool) error {
	mutation := DiscountCodeDeactivateMutation
	field := "discountCodeDeactivate"
	if active {
		mutation = DiscountCodeActivateMutation
		field = "discountCodeActivate"
	}
	variables := map[string]interface{}{"id": externalID}
	_, err := g.runCreate(ctx, store, mutation, field, variables)
	return err
}

func (g *Gateway) Delete(ctx context.Context, store *domain.Store, externalID string, kind domain.PromotionKind) error {
	mutation := DiscountCodeDeleteMutation
	field := "discountCodeDelete"
	if kind == domain.PromotionKindOffer {
		mutation = DiscountAutomaticDeleteMutation
		field = "discountAutomaticDelete"
	}
	variables := map[string]interface{}{"id": externalID}
	_, err := g.runCreate(ctx, store, mutation, field, variables)
	return err
}

// runCreate executes a discount mutation and returns the created/updated
// node's GID when the mutation yields one.
func (g *Gateway) runCreate(ctx context.Context, store *domain.Store, mutation, field string, variables map[string]interface{}) (string, error) {
	resp, err := g.client.Execute(ctx, store.ShopDomain, store.AccessToken, mutation, variables)
	if err != nil {
		return "", err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse %s response: %w", field, err)
	}
	raw, ok := envelope[field]
	if !ok {
		return "", fmt.Errorf("%s missing from response", field)
	}

	var result mutationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to parse %s result: %w", field, err)
	}

	if err := rejectionFromUserErrors(result.UserErrors, variables); err != nil {
		g.logger.Debug("Shopify rejected discount mutation",
			zap.String("mutation", field),
			zap.Error(err),
		)
		return "", err
	}

	if result.CodeDiscountNode != nil {
		return result.CodeDiscountNode.ID, nil
	}
	if result.AutomaticDiscountNode != nil {
		return result.AutomaticDiscountNode.ID, nil
	}
	return "", nil
}
