package shopify

// ProductVariantsQuery fetches catalog snapshots for a set of variant ids
const ProductVariantsQuery = `
query productVariants($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on ProductVariant {
      id
      price
      availableForSale
      product {
        id
        status
      }
    }
  }
}
`

// VariantNode is one entry of the ProductVariantsQuery response
type VariantNode struct {
	ID               string `json:"id"`
	Price            string `json:"price"`
	AvailableForSale bool   `json:"availableForSale"`
	Product          struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"product"`
}

// VariantNodesResponse is the nodes envelope of the ProductVariantsQuery
type VariantNodesResponse struct {
	Nodes []*VariantNode `json:"nodes"`
}
