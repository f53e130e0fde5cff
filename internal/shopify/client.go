package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/pkg/errors"
)

type Client struct {
	apiVersion string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Shopify Admin GraphQL client. The client is
// store-agnostic; each call carries the shop domain and access token so a
// single client serves every connected store.
func NewClient(apiVersion string, logger *zap.Logger) *Client {
	return &Client{
		apiVersion: apiVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// NormalizeShopDomain strips scheme and trailing slashes from a shop domain
func NormalizeShopDomain(shopDomain string) string {
	shopDomain = strings.TrimPrefix(shopDomain, "https://")
	shopDomain = strings.TrimPrefix(shopDomain, "http://")
	return strings.TrimSuffix(shopDomain, "/")
}

// GraphQLRequest represents a GraphQL request
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL response
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// UserError is Shopify's per-mutation validation error shape
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// Execute executes a GraphQL query/mutation against one store's Admin API.
// Non-2xx HTTP responses surface as ErrPlatformRejection carrying the raw
// status so callers can key retries off it.
func (c *Client) Execute(ctx context.Context, shopDomain, accessToken, query string, variables map[string]interface{}) (*GraphQLResponse, error) {
	url := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", NormalizeShopDomain(shopDomain), c.apiVersion)

	reqBody := GraphQLRequest{
		Query:     query,
		Variables: variables,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.ErrPlatformRejection{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var graphQLResp GraphQLResponse
	if err := json.Unmarshal(body, &graphQLResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}

	if len(graphQLResp.Errors) > 0 {
		errorMessages := make([]string, len(graphQLResp.Errors))
		for i, gqlErr := range graphQLResp.Errors {
			errorMessages[i] = gqlErr.Message
		}
		return nil, fmt.Errorf("graphQL errors: %s", strings.Join(errorMessages, "; "))
	}

	return &graphQLResp, nil
}

// rejectionFromUserErrors converts Shopify userErrors into a status-coded
// rejection: resource uniqueness errors map to 409, everything else to 422.
func rejectionFromUserErrors(userErrors []UserError, payload interface{}) error {
	if len(userErrors) == 0 {
		return nil
	}

	status := 422
	first := userErrors[0]
	switch first.Code {
	case "TAKEN", "EXISTS", "DUPLICATE", "DISCOUNT_CODE_DUPLICATE":
		status = 409
	}

	messages := make([]string, len(userErrors))
	for i, ue := range userErrors {
		messages[i] = ue.Message
	}

	return &errors.ErrPlatformRejection{
		StatusCode: status,
		Code:       first.Code,
		Message:    strings.Join(messages, "; "),
		Payload:    payload,
	}
}
