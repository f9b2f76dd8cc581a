package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/journal"
	"github.com/JonMunkholm/servicesync/internal/logging"
	"github.com/JonMunkholm/servicesync/internal/salesforce"
)

// ContactAction is what ResolveContact did.
type ContactAction string

const (
	ContactFound        ContactAction = "found"
	ContactCreated      ContactAction = "created"
	ContactUpdated      ContactAction = "updated"
	ContactCreateFailed ContactAction = "create_failed"
	ContactUpdateFailed ContactAction = "update_failed"
)

// ContactResolution is the outcome of ResolveContact. ID is empty when a create failed.
type ContactResolution struct {
	ID     string
	Action ContactAction
}

// Resolver looks up CRM records by natural key and creates them when absent.
type Resolver struct {
	session Session
	cfg     *config.Config
	journal journal.Journal
	now     func() time.Time
}

// NewResolver creates a Resolver. A nil journal records nothing.
func NewResolver(session Session, cfg *config.Config, j journal.Journal) *Resolver {
	if j == nil {
		j = journal.Nop{}
	}
	return &Resolver{
		session: session,
		cfg:     cfg,
		journal: j,
		now:     time.Now,
	}
}

// ResolveAccount returns the id of the Account whose English or French name
// matches exactly, or the generic account id. A blank or absent name returns
// the generic id without querying. Accounts are never created.
func (r *Resolver) ResolveAccount(ctx context.Context, name *string) (string, error) {
	fallback := r.cfg.Engagement.GenericAccountID
	if name == nil || strings.TrimSpace(Sanitize(*name)) == "" {
		return fallback, nil
	}

	rec, err := QueryOne(ctx, r.session, accountByNameQuery(*name))
	if err != nil {
		return "", fmt.Errorf("account lookup: %w", err)
	}
	if rec == nil {
		return fallback, nil
	}
	if account := accountFromRecord(rec); account.ID != "" {
		return account.ID, nil
	}
	return fallback, nil
}

// ResolveContact finds the row's Contact and creates it when absent. Under
// the relaxed policy a match by user id or email is overwritten with the
// row's current fields. A mutation the CRM rejects is logged and the
// attempted id is returned without an error.
func (r *Resolver) ResolveContact(ctx context.Context, row ServiceUserRow) (ContactResolution, error) {
	relaxed := r.cfg.Sync.Relaxed()

	query := contactByUserIDQuery(row.UserID)
	if relaxed {
		query = contactByUserIDOrEmailQuery(row.UserID, row.UserEmail)
	}

	rec, err := QueryOne(ctx, r.session, query)
	if err != nil {
		return ContactResolution{}, fmt.Errorf("contact lookup: %w", err)
	}

	payload := NewContactPayload(row)

	if rec != nil {
		id := rec.String("Id")
		if !relaxed {
			return ContactResolution{ID: id, Action: ContactFound}, nil
		}

		res, err := r.session.Update(ctx, ObjectContact, id, payload.Fields())
		if err != nil {
			return ContactResolution{}, fmt.Errorf("contact update: %w", err)
		}
		op := fmt.Sprintf("Contact update for '%s'", row.UserEmail)
		if !r.record(ctx, op, ObjectContact, id, res) {
			return ContactResolution{ID: id, Action: ContactUpdateFailed}, nil
		}
		return ContactResolution{ID: id, Action: ContactUpdated}, nil
	}

	res, err := r.session.Create(ctx, ObjectContact, payload.Fields())
	if err != nil {
		return ContactResolution{}, fmt.Errorf("contact create: %w", err)
	}
	op := fmt.Sprintf("Contact create for '%s'", row.UserEmail)
	if !r.record(ctx, op, ObjectContact, res.ID(), res) {
		return ContactResolution{ID: res.ID(), Action: ContactCreateFailed}, nil
	}
	return ContactResolution{ID: res.ID(), Action: ContactCreated}, nil
}

// ResolveEngagement finds the Opportunity for the row's service. In create
// mode a missing one is created, owned by row.AccountID, together with its
// product line item. The returned ref may carry an empty id if the create
// was rejected; created is true only when the CRM saved a new Opportunity.
// In lookup mode a miss returns nil.
func (r *Resolver) ResolveEngagement(ctx context.Context, row ServiceUserRow) (ref *EngagementRef, created bool, err error) {
	rec, err := QueryOne(ctx, r.session, engagementByServiceIDQuery(row.ServiceID))
	if err != nil {
		return nil, false, fmt.Errorf("engagement lookup: %w", err)
	}
	if rec != nil {
		return engagementFromRecord(rec), false, nil
	}
	if !r.cfg.Sync.CreatesEngagements() {
		return nil, false, nil
	}

	payload := NewEngagementPayload(row, r.cfg.Engagement.RecordTypeID, r.now())
	res, err := r.session.Create(ctx, ObjectEngagement, payload.Fields())
	if err != nil {
		return nil, false, fmt.Errorf("engagement create: %w", err)
	}
	engagementID := res.ID()
	r.record(ctx, fmt.Sprintf("Engagement create for service '%s'", row.ServiceName), ObjectEngagement, engagementID, res)

	if engagementID != "" {
		item := LineItemPayload{
			OpportunityID:    engagementID,
			PricebookEntryID: r.cfg.Engagement.PricebookID,
			ProductID:        r.cfg.Engagement.ProductID,
			Quantity:         1,
			UnitPrice:        0,
		}
		res, err := r.session.Create(ctx, ObjectLineItem, item.Fields())
		if err != nil {
			return nil, false, fmt.Errorf("engagement line item create: %w", err)
		}
		r.record(ctx, fmt.Sprintf("Engagement OpportunityLineItem create for service '%s'", row.ServiceName), ObjectLineItem, res.ID(), res)
	}

	return &EngagementRef{ID: engagementID, AccountID: row.AccountID}, engagementID != "", nil
}

// LinkContactRole creates the OpportunityContactRole for the pair unless one
// already exists. It reports whether a create was attempted.
func (r *Resolver) LinkContactRole(ctx context.Context, engagementID, contactID string) (bool, error) {
	rec, err := QueryOne(ctx, r.session, contactRoleQuery(engagementID, contactID))
	if err != nil {
		return false, fmt.Errorf("contact role lookup: %w", err)
	}
	if rec != nil {
		return false, nil
	}

	payload := ContactRolePayload{ContactID: contactID, OpportunityID: engagementID}
	res, err := r.session.Create(ctx, ObjectContactRole, payload.Fields())
	if err != nil {
		return false, fmt.Errorf("contact role create: %w", err)
	}
	op := fmt.Sprintf("ContactRole add for contact_id '%s' and engagement_id '%s'", contactID, engagementID)
	r.record(ctx, op, ObjectContactRole, res.ID(), res)
	return true, nil
}

// record logs a mutation outcome, writes it to the journal and returns whether it succeeded.
func (r *Resolver) record(ctx context.Context, operation, object, recordID string, res salesforce.MutationResult) bool {
	ok := res.Succeeded()
	logger := logging.FromContext(ctx)
	if ok {
		logger.Info(operation+" succeeded", "object", object, "id", recordID)
	} else {
		logger.Error(operation+" failed", "object", object, "result", res.String())
	}

	entry := journal.Entry{
		RunID:     logging.RunID(ctx),
		Operation: operation,
		Object:    object,
		RecordID:  recordID,
		Success:   ok,
	}
	if !ok {
		entry.Detail = res.String()
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		logger.Warn("journal write failed", "operation", operation, "error", err)
	}

	return ok
}
