package reconcile

import "log/slog"

// ServiceUserRow is one line of the service users export. It is read once
// and never persisted. AccountID is attached to a copy while the row is processed.
type ServiceUserRow struct {
	ServiceID         string
	ServiceName       string
	OrganisationNotes *string // nil when the column is absent
	Restricted        string  // boolean as text; only "true" means restricted
	UserID            string
	UserName          string
	UserEmail         string

	AccountID string
}

// IsRestricted reports whether the service is still in trial.
func (r ServiceUserRow) IsRestricted() bool {
	return r.Restricted == "true"
}

// LogValue logs the full row, which is what an operator needs to resume a failed run.
func (r ServiceUserRow) LogValue() slog.Value {
	notes := slog.Any("service_organisation_notes", nil)
	if r.OrganisationNotes != nil {
		notes = slog.String("service_organisation_notes", *r.OrganisationNotes)
	}
	attrs := []slog.Attr{
		slog.String("service_id", r.ServiceID),
		slog.String("service_name", r.ServiceName),
		notes,
		slog.String("service_restricted", r.Restricted),
		slog.String("user_id", r.UserID),
		slog.String("user_name", r.UserName),
		slog.String("user_email", r.UserEmail),
	}
	if r.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", r.AccountID))
	}
	return slog.GroupValue(attrs...)
}
