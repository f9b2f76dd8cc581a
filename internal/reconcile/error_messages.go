package reconcile

// # Error Codes Reference
//
// A failed run prints one of the codes below next to the technical error so
// an operator can tell at a glance what to fix before re-running.
//
// # CRM Errors (SF001-SF099)
//
//	SF001 - Login rejected: credentials or security token refused
//	        Patterns: "salesforce login failed"
//	SF002 - Session expired: the CRM no longer accepts the session
//	        Patterns: "invalid_session_id"
//	SF003 - API limit: the org's request allowance is used up
//	        Patterns: "request_limit_exceeded"
//	SF004 - Bad query: a field or object is missing in this org
//	        Patterns: "malformed_query", "invalid_field", "invalid_type"
//	SF005 - CRM unavailable: the CRM answered with a server error
//	        Patterns: "status 500", "status 502", "status 503"
//	SF006 - Duplicate rule: a duplicate rule blocked a save
//	        Patterns: "duplicates_detected"
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Connection refused       Patterns: "connection refused"
//	NET002 - Unknown host             Patterns: "no such host"
//	NET003 - Request timeout          Patterns: "deadline exceeded", "timeout"
//
// # Input Errors (CSV001-CSV099)
//
//	CSV001 - Missing column           Patterns: "missing required column"
//	CSV002 - Malformed CSV            Patterns: "wrong number of fields", "parse error"
//	CSV003 - Empty file               Patterns: "empty file"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Interrupted              Patterns: "context canceled"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches; the log carries the original error.
//
// Patterns are matched case-insensitively with strings.Contains, first match wins.

import (
	"fmt"
	"strings"
)

// UserMessage is the operator-facing description of a failure.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Stable reference code
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgLogin = UserMessage{
		Message: "The CRM rejected the login",
		Action:  "Check LOGIN_USERNAME, LOGIN_PASSWORD, LOGIN_SECURITY_TOKEN and LOGIN_DOMAIN",
		Code:    "SF001",
	}
	msgBadQuery = UserMessage{
		Message: "The CRM rejected a query",
		Action:  "Verify the custom fields exist in this org",
		Code:    "SF004",
	}
	msgUnavailable = UserMessage{
		Message: "The CRM returned a server error",
		Action:  "Wait and re-run; rows already synced are found on the next pass",
		Code:    "SF005",
	}
	msgTimeout = UserMessage{
		Message: "A CRM request timed out",
		Action:  "Re-run, or raise REQUEST_TIMEOUT",
		Code:    "NET003",
	}
	msgMalformed = UserMessage{
		Message: "The input file is not valid CSV",
		Action:  "Ensure every line has the same number of comma-separated fields",
		Code:    "CSV002",
	}
)

var errorPatterns = []errorPattern{
	// CRM
	{pattern: "salesforce login failed", msg: msgLogin},
	{
		pattern: "invalid_session_id",
		msg: UserMessage{
			Message: "The CRM session expired",
			Action:  "Re-run to log in again",
			Code:    "SF002",
		},
	},
	{
		pattern: "request_limit_exceeded",
		msg: UserMessage{
			Message: "The org's API request limit is exhausted",
			Action:  "Wait for the limit to reset, or raise ROW_DELAY",
			Code:    "SF003",
		},
	},
	{pattern: "malformed_query", msg: msgBadQuery},
	{pattern: "invalid_field", msg: msgBadQuery},
	{pattern: "invalid_type", msg: msgBadQuery},
	{pattern: "status 500", msg: msgUnavailable},
	{pattern: "status 502", msg: msgUnavailable},
	{pattern: "status 503", msg: msgUnavailable},
	{
		pattern: "duplicates_detected",
		msg: UserMessage{
			Message: "A duplicate rule blocked the save",
			Action:  "Review the org's duplicate rules for this object",
			Code:    "SF006",
		},
	},

	// Network
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the CRM",
			Action:  "Check LOGIN_DOMAIN and network access",
			Code:    "NET001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "The CRM host could not be resolved",
			Action:  "Check LOGIN_DOMAIN",
			Code:    "NET002",
		},
	},
	{pattern: "deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},

	// Input
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing from the CSV",
			Action:  "Export the file again with all service and user columns",
			Code:    "CSV001",
		},
	},
	{pattern: "wrong number of fields", msg: msgMalformed},
	{pattern: "parse error", msg: msgMalformed},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The input file has no header row",
			Action:  "Check CSV_PATH points at the export",
			Code:    "CSV003",
		},
	},

	// Run
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was interrupted",
			Action:  "Re-run; completed rows are found rather than duplicated",
			Code:    "RUN001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for the failing row and error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
