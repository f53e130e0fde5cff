package shopify

// DiscountCodeCreateMutation creates a code-based basic discount ("coupon")
const DiscountCodeCreateMutation = `
mutation discountCodeBasicCreate($basicCodeDiscount: DiscountCodeBasicInput!) {
  discountCodeBasicCreate(basicCodeDiscount: $basicCodeDiscount) {
    codeDiscountNode {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountCodeUpdateMutation updates a code-based basic discount in place
const DiscountCodeUpdateMutation = `
mutation discountCodeBasicUpdate($id: ID!, $basicCodeDiscount: DiscountCodeBasicInput!) {
  discountCodeBasicUpdate(id: $id, basicCodeDiscount: $basicCodeDiscount) {
    codeDiscountNode {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountCodeDeleteMutation deletes a code-based discount
const DiscountCodeDeleteMutation = `
mutation discountCodeDelete($id: ID!) {
  discountCodeDelete(id: $id) {
    deletedCodeDiscountId
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountCodeDeactivateMutation deactivates a code-based discount
const DiscountCodeDeactivateMutation = `
mutation discountCodeDeactivate($id: ID!) {
  discountCodeDeactivate(id: $id) {
    codeDiscountNode {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountCodeActivateMutation reactivates a code-based discount
const DiscountCodeActivateMutation = `
mutation discountCodeActivate($id: ID!) {
  discountCodeActivate(id: $id) {
    codeDiscountNode {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountAutomaticCreateMutation creates an automatic basic discount ("special offer")
const DiscountAutomaticCreateMutation = `
mutation discountAutomaticBasicCreate($automaticBasicDiscount: DiscountAutomaticBasicInput!) {
  discountAutomaticBasicCreate(automaticBasicDiscount: $automaticBasicDiscount) {
    automaticDiscountNode {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountAutomaticUpdateMutation updates an automatic basic discount in place
const DiscountAutomaticUpdateMutation = `
mutation discountAutomaticBasicUpdate($id: ID!, $automaticBasicDiscount: DiscountAutomaticBasicInput!) {
  discountAutomaticBasicUpdate(id: $id, automaticBasicDiscount: $automaticBasicDiscount) {
    automaticDiscountNode {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

// DiscountAutomaticDeleteMutation deletes an automatic discount
const DiscountAutomaticDeleteMutation = `
mutation discountAutomaticDelete($id: ID!) {
  discountAutomaticDelete(id: $id) {
    deletedAutomaticDiscountId
    userErrors {
      field
      message
      code
    }
  }
}
`

// mutationResult is the shared response shape of the discount mutations
type mutationResult struct {
	CodeDiscountNode *struct {
		ID string `json:"id"`
	} `json:"codeDiscountNode,omitempty"`
	AutomaticDiscountNode *struct {
		ID string `json:"id"`
	} `json:"automaticDiscountNode,omitempty"`
	DeletedCodeDiscountID      *string     `json:"deletedCodeDiscountId,omitempty"`
	DeletedAutomaticDiscountID *string     `json:"deletedAutomaticDiscountId,omitempty"`
	UserErrors                 []UserError `json:"userErrors"`
}
