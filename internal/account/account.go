// Package account implements the lookup collaborator the engine calls when
// a request needs to resolve a user's organization membership.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cito-data/test-engine/internal/apperror"
)

// Account is the account service's representation of a user's membership
// in an organization.
type Account struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	ModifiedOn     string `json:"modifiedOn"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Client looks up accounts from the account service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client rooted at baseURL (e.g. https://accounts.internal).
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// GetBy fetches the accounts matching params, authenticating with the
// caller's bearer token.
func (c *Client) GetBy(ctx context.Context, params map[string]string, jwt string) ([]Account, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/accounts", c.baseURL))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "build account lookup url", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "build account lookup request", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "call account service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload errorPayload
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		msg := payload.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, apperror.New(apperror.KindDownstream, "account service: "+msg)
	}

	var accounts []Account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "decode account service response", err)
	}
	return accounts, nil
}

// GetByUserID looks up accounts by user id, the narrow lookup an
// authenticated request needs to resolve its caller's organization.
func (c *Client) GetByUserID(ctx context.Context, userID, jwt string) ([]Account, error) {
	return c.GetBy(ctx, map[string]string{"userId": userID}, jwt)
}
