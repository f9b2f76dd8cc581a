// Package salesforce is a minimal REST session for the CRM: a SOAP password
// login, SOQL queries, and single-record creates and updates.
//
// The session is a single shared resource with no internal locking. Callers
// issue one request at a time.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DuplicateRuleHeader lets creates through when a duplicate rule would block them.
const (
	DuplicateRuleHeader = "Sforce-Duplicate-Rule-Header"
	DuplicateRuleValue  = "allowSave=true"
)

// NewHTTPClient returns an http.Client enforcing a uniform request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Client issues REST calls against one instance with one session id.
type Client struct {
	instanceURL string
	sessionID   string
	apiVersion  string
	http        *http.Client
}

// NewClient creates a Client for an already established session.
func NewClient(instanceURL, sessionID, apiVersion string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		instanceURL: instanceURL,
		sessionID:   sessionID,
		apiVersion:  apiVersion,
		http:        httpClient,
	}
}

// InstanceURL returns the instance the session is bound to.
func (c *Client) InstanceURL() string {
	return c.instanceURL
}

func (c *Client) dataURL(path string) string {
	return fmt.Sprintf("%s/services/data/v%s/%s", c.instanceURL, c.apiVersion, path)
}

// Query runs a SOQL query and returns the first page of results.
// Non-2xx responses are returned as errors.
func (c *Client) Query(ctx context.Context, soql string) (*QueryResult, error) {
	endpoint := c.dataURL("query/") + "?q=" + url.QueryEscape(soql)

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("query: status %d: %s", status, describeErrors(body))
	}

	var result QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("query: decode response: %w", err)
	}
	return &result, nil
}

// Create inserts one record. A rejection reported by the CRM comes back as
// an unsuccessful MutationResult, not an error. Errors are reserved for
// transport failures and bodies that cannot be decoded.
func (c *Client) Create(ctx context.Context, object string, fields Fields) (MutationResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, c.dataURL("sobjects/"+object+"/"), fields)
	if err != nil {
		return MutationResult{}, fmt.Errorf("create %s: %w", object, err)
	}

	if status >= 200 && status <= 299 {
		var save SaveResult
		if err := json.Unmarshal(body, &save); err != nil {
			return MutationResult{}, fmt.Errorf("create %s: decode response: %w", object, err)
		}
		return MutationResult{StatusCode: status, Save: &save}, nil
	}

	return rejected(object, "create", status, body)
}

// Update patches one record. Success is a bare 204.
func (c *Client) Update(ctx context.Context, object, id string, fields Fields) (MutationResult, error) {
	status, body, err := c.do(ctx, http.MethodPatch, c.dataURL("sobjects/"+object+"/"+url.PathEscape(id)), fields)
	if err != nil {
		return MutationResult{}, fmt.Errorf("update %s: %w", object, err)
	}

	if status >= 200 && status <= 299 {
		return MutationResult{StatusCode: status}, nil
	}

	return rejected(object, "update", status, body)
}

// rejected turns a 4xx error array into a failed save result. 5xx and
// undecodable bodies are errors.
func rejected(object, op string, status int, body []byte) (MutationResult, error) {
	if status >= 500 {
		return MutationResult{}, fmt.Errorf("%s %s: status %d: %s", op, object, status, describeErrors(body))
	}

	var apiErrs []APIError
	if err := json.Unmarshal(body, &apiErrs); err != nil {
		return MutationResult{}, fmt.Errorf("%s %s: status %d: decode error body: %w", op, object, status, err)
	}

	failed := false
	return MutationResult{
		StatusCode: status,
		Save:       &SaveResult{Success: &failed, Errors: apiErrs},
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.sessionID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(DuplicateRuleHeader, DuplicateRuleValue)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// describeErrors renders an error body for wrapping into a Go error.
func describeErrors(body []byte) string {
	var apiErrs []APIError
	if err := json.Unmarshal(body, &apiErrs); err == nil && len(apiErrs) > 0 {
		msg := apiErrs[0].String()
		if len(apiErrs) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(apiErrs)-1)
		}
		return msg
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
