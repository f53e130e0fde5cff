package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumericFromGID(t *testing.T) {
	require.Equal(t, "123", numericFromGID("gid://shopify/Product/123"))
	require.Equal(t, "456", numericFromGID("gid://shopify/ProductVariant/456"))
	require.Equal(t, "789", numericFromGID("789"))
}

func TestVariantGID(t *testing.T) {
	require.Equal(t, "gid://shopify/ProductVariant/42", variantGID("42"))
	require.Equal(t, "gid://shopify/ProductVariant/42", variantGID("gid://shopify/ProductVariant/42"))
}
