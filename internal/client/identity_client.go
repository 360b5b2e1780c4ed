package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
)

// IdentityClient resolves user role information from the platform identity
// service over HTTP.
type IdentityClient struct {
	baseURL string
	http    *http.Client
}

// NewIdentityClient creates a new identity service client.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetUsersWithRole returns the IDs of users holding a role within a company.
func (c *IdentityClient) GetUsersWithRole(ctx context.Context, companyID, role string) ([]string, error) {
	path := fmt.Sprintf("/api/v1/users/by-role?company_id=%s&role=%s",
		url.QueryEscape(companyID), url.QueryEscape(role))

	var resp struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get users with role: %w", err)
	}
	return resp.UserIDs, nil
}

// GetUserRole returns the role a user holds within a company.
func (c *IdentityClient) GetUserRole(ctx context.Context, companyID, userID string) (string, error) {
	path := fmt.Sprintf("/api/v1/users/role?company_id=%s&user_id=%s",
		url.QueryEscape(companyID), url.QueryEscape(userID))

	var resp struct {
		Role string `json:"role"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("failed to get user role: %w", err)
	}
	return resp.Role, nil
}

func (c *IdentityClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeDependency, "identity service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.CodeNotFound, "identity service: not found")
	case resp.StatusCode != http.StatusOK:
		return apperr.New(apperr.CodeDependency,
			fmt.Sprintf("identity service returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(err, apperr.CodeDependency, "identity service: malformed response")
	}
	return nil
}
