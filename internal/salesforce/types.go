package salesforce

import (
	"fmt"
	"strings"
)

// Record is a single sObject row as returned by a SOQL query.
type Record map[string]any

// String returns the field as a string, or "" when absent or not a string.
func (r Record) String(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// QueryResult mirrors the REST query response. TotalSize is a pointer so a
// response missing the field can be told apart from an empty result.
type QueryResult struct {
	TotalSize *int     `json:"totalSize"`
	Done      bool     `json:"done"`
	Records   []Record `json:"records"`
}

// APIError is one entry of a REST error response.
type APIError struct {
	StatusCode string   `json:"statusCode,omitempty"`
	ErrorCode  string   `json:"errorCode,omitempty"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

func (e APIError) String() string {
	code := e.ErrorCode
	if code == "" {
		code = e.StatusCode
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

// SaveResult is the structured response of an sObject create.
type SaveResult struct {
	ID      string     `json:"id"`
	Success *bool      `json:"success"`
	Errors  []APIError `json:"errors"`
}

// MutationResult normalizes the two shapes a mutation can answer with: a
// bare HTTP status (update) or a structured save result (create, and any
// failure that carried an error body).
type MutationResult struct {
	StatusCode int
	Save       *SaveResult
}

// Succeeded reports whether the CRM accepted the mutation. A structured
// result decides by its success flag (missing counts as failure); otherwise
// the status code must be 2xx.
func (r MutationResult) Succeeded() bool {
	if r.Save != nil {
		return r.Save.Success != nil && *r.Save.Success
	}
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// ID returns the created record id, if any.
func (r MutationResult) ID() string {
	if r.Save == nil {
		return ""
	}
	return r.Save.ID
}

// String renders the raw result for failure logs.
func (r MutationResult) String() string {
	if r.Save == nil {
		return fmt.Sprintf("status %d", r.StatusCode)
	}
	success := "missing"
	if r.Save.Success != nil {
		success = fmt.Sprintf("%t", *r.Save.Success)
	}
	parts := make([]string, 0, len(r.Save.Errors))
	for _, e := range r.Save.Errors {
		parts = append(parts, e.String())
	}
	return fmt.Sprintf("status %d, id %q, success %s, errors [%s]",
		r.StatusCode, r.Save.ID, success, strings.Join(parts, "; "))
}

// Fields is the JSON body of a create or update.
type Fields map[string]any
