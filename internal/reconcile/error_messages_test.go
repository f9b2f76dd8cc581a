package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"login fault", errors.New("salesforce login failed: INVALID_LOGIN: Invalid username"), "SF001"},
		{"expired session", errors.New("query: status 401: INVALID_SESSION_ID: Session expired"), "SF002"},
		{"api limit", errors.New("query: status 403: REQUEST_LIMIT_EXCEEDED: TotalRequests Limit exceeded"), "SF003"},
		{"bad field", errors.New("query: status 400: INVALID_FIELD: No such column"), "SF004"},
		{"server error", errors.New("create Contact: status 503: SERVER_UNAVAILABLE"), "SF005"},
		{"duplicate rule", errors.New("DUPLICATES_DETECTED: Use one of these records?"), "SF006"},
		{"connection refused", errors.New("dial tcp 10.0.0.1:443: connect: connection refused"), "NET001"},
		{"unknown host", errors.New("dial tcp: lookup x.salesforce.com: no such host"), "NET002"},
		{"client timeout", errors.New("Client.Timeout exceeded while awaiting headers"), "NET003"},
		{"wrapped deadline", fmt.Errorf("contact lookup: %w", context.DeadlineExceeded), "NET003"},
		{"missing column", errors.New("missing required column: user_email"), "CSV001"},
		{"ragged csv", errors.New("record on line 3: wrong number of fields"), "CSV002"},
		{"empty input", errors.New("empty file: no header row"), "CSV003"},
		{"interrupted", fmt.Errorf("row delay: %w", context.Canceled), "RUN001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("Salesforce Login Failed"), "SF001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("dial tcp: lookup x.salesforce.com: no such host"))

	expected := "The CRM host could not be resolved (Code: NET002). Check LOGIN_DOMAIN"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}
