package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/shopify"
)

// Provider resolves variant snapshots for a store. Results may be partial;
// unresolvable ids come back in Missing and must be treated as unavailable.
type Provider interface {
	FetchSnapshots(ctx context.Context, store *domain.Store, variantIDs []string) (domain.SnapshotResult, error)
}

// ShopifyProvider fetches variant snapshots from the Shopify Admin API
type ShopifyProvider struct {
	client *shopify.Client
	logger *zap.Logger
}

// NewShopifyProvider creates a new Shopify-backed snapshot provider
func NewShopifyProvider(client *shopify.Client, logger *zap.Logger) *ShopifyProvider {
	return &ShopifyProvider{
		client: client,
		logger: logger,
	}
}

func (p *ShopifyProvider) FetchSnapshots(ctx context.Context, store *domain.Store, variantIDs []string) (domain.SnapshotResult, error) {
	result := domain.SnapshotResult{
		Snapshots: make(map[string]domain.VariantSnapshot, len(variantIDs)),
	}
	if len(variantIDs) == 0 {
		return result, nil
	}

	gids := make([]string, len(variantIDs))
	for i, id := range variantIDs {
		gids[i] = variantGID(id)
	}

	resp, err := p.client.Execute(ctx, store.ShopDomain, store.AccessToken, shopify.ProductVariantsQuery, map[string]interface{}{
		"ids": gids,
	})
	if err != nil {
		return result, fmt.Errorf("fetch variant snapshots: %w", err)
	}

	var nodes shopify.VariantNodesResponse
	if err := json.Unmarshal(resp.Data, &nodes); err != nil {
		return result, fmt.Errorf("parse variant snapshots: %w", err)
	}

	// nodes come back positionally; a null node means the id resolved to
	// nothing (deleted variant or wrong id type)
	for i, node := range nodes.Nodes {
		if i >= len(variantIDs) {
			break
		}
		requestedID := variantIDs[i]
		if node == nil || node.ID == "" {
			result.Missing = append(result.Missing, requestedID)
			continue
		}

		price, err := strconv.ParseFloat(node.Price, 64)
		if err != nil {
			p.logger.Warn("Variant has unparseable price",
				zap.String("variant_id", requestedID),
				zap.String("price", node.Price),
			)
			result.Missing = append(result.Missing, requestedID)
			continue
		}

		result.Snapshots[requestedID] = domain.VariantSnapshot{
			VariantID: requestedID,
			ProductID: numericFromGID(node.Product.ID),
			Price:     price,
			IsActive:  node.AvailableForSale && node.Product.Status == "ACTIVE",
		}
	}

	// ids beyond the returned node list are missing too
	for i := len(nodes.Nodes); i < len(variantIDs); i++ {
		result.Missing = append(result.Missing, variantIDs[i])
	}

	return result, nil
}

func variantGID(variantID string) string {
	if strings.HasPrefix(variantID, "gid:") {
		return variantID
	}
	return "gid://shopify/ProductVariant/" + variantID
}

// numericFromGID extracts the trailing numeric id from a Shopify GID
// (gid://shopify/Product/123 -> "123"); non-GID input passes through.
func numericFromGID(gid string) string {
	if idx := strings.LastIndex(gid, "/"); idx >= 0 {
		return gid[idx+1:]
	}
	return gid
}
