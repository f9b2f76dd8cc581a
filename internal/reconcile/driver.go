package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/logging"
)

// RowSource yields rows in file order and io.EOF at the end.
type RowSource interface {
	Next() (ServiceUserRow, error)
	// Line is the input line number of the row last returned by Next.
	Line() int
}

// ReconciliationCache holds what was resolved for the current run of rows
// sharing a service id. It is replaced, never mutated, when the service changes.
type ReconciliationCache struct {
	ServiceID  string
	Engagement *EngagementRef // nil when no engagement could be resolved
	AccountID  string

	loaded bool
}

// Covers reports whether the cache already holds serviceID.
func (c ReconciliationCache) Covers(serviceID string) bool {
	return c.loaded && c.ServiceID == serviceID
}

// HasEngagement reports whether an engagement id is cached.
func (c ReconciliationCache) HasEngagement() bool {
	return c.Engagement != nil && c.Engagement.ID != ""
}

// RowOutcome describes what processing did for one row.
type RowOutcome struct {
	Line              int
	ServiceID         string
	CacheRefreshed    bool
	EngagementID      string
	EngagementCreated bool
	Skipped           bool
	Contact           ContactResolution
	RoleCreated       bool
}

// ReconciliationError is the first row failure; it stops the run.
type ReconciliationError struct {
	Line int
	Row  ServiceUserRow
	Err  error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("line %d (service_id %q, user_id %q): %v", e.Line, e.Row.ServiceID, e.Row.UserID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Driver walks the rows of one export and reconciles each against the CRM.
// It is strictly sequential: one CRM request at a time, a fixed delay after
// every row, and a stop on the first failing row.
type Driver struct {
	resolver *Resolver
	cfg      *config.Config
	progress *Progress
	sleep    func(ctx context.Context, d time.Duration) error

	cache ReconciliationCache
}

// NewDriver creates a Driver. progress may be nil.
func NewDriver(resolver *Resolver, cfg *config.Config, progress *Progress) *Driver {
	if progress == nil {
		progress = NewProgress("")
	}
	return &Driver{
		resolver: resolver,
		cfg:      cfg,
		progress: progress,
		sleep:    sleepContext,
	}
}

// Progress returns the live counters of the run.
func (d *Driver) Progress() *Progress {
	return d.progress
}

// Run processes every row of src. It returns a *ReconciliationError for the
// first row that fails, or the reader's error if the input is unreadable.
func (d *Driver) Run(ctx context.Context, src RowSource) error {
	logger := logging.FromContext(ctx)

	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			err = fmt.Errorf("read input: %w", err)
			logger.Error("failed to read input", "line", src.Line(), "error", err)
			d.progress.fail(err)
			return err
		}

		line := src.Line()
		outcome, err := d.processRow(ctx, line, row)
		if err != nil {
			logger.Error("failed to process row", "line", line, "row", row, "error", err)
			d.progress.fail(err)
			return &ReconciliationError{Line: line, Row: row, Err: err}
		}
		d.progress.observe(outcome)

		if err := d.sleep(ctx, d.cfg.Sync.RowDelay); err != nil {
			err = fmt.Errorf("row delay: %w", err)
			d.progress.fail(err)
			return err
		}
	}

	d.progress.finish()
	snap := d.progress.Snapshot()
	logger.Info("sync complete",
		"rows", snap.RowsProcessed,
		"skipped", snap.RowsSkipped,
		"engagements_created", snap.EngagementsCreated,
		"contacts_created", snap.ContactsCreated,
		"contacts_updated", snap.ContactsUpdated,
		"roles_created", snap.RolesCreated,
	)
	return nil
}

func (d *Driver) processRow(ctx context.Context, line int, row ServiceUserRow) (RowOutcome, error) {
	logger := logging.WithFields(ctx, "line", line, "service_id", row.ServiceID, "user_id", row.UserID)
	logger.Info("processing row", "row", row)

	outcome := RowOutcome{Line: line, ServiceID: row.ServiceID}

	if !d.cache.Covers(row.ServiceID) {
		cache, created, err := d.refresh(ctx, row)
		if err != nil {
			return outcome, err
		}
		d.cache = cache
		outcome.CacheRefreshed = true
		outcome.EngagementCreated = created
	}

	if d.cache.HasEngagement() {
		outcome.EngagementID = d.cache.Engagement.ID
	} else if d.cfg.Sync.MissingEngagement != config.MissingEngagementContactOnly {
		logger.Warn("no engagement for service, skipping row")
		outcome.Skipped = true
		return outcome, nil
	}

	row.AccountID = d.cache.AccountID

	contact, err := d.resolver.ResolveContact(ctx, row)
	if err != nil {
		return outcome, err
	}
	outcome.Contact = contact

	if !d.cache.HasEngagement() {
		logger.Info("no engagement for service, contact role not linked", "contact_id", contact.ID)
		return outcome, nil
	}

	created, err := d.resolver.LinkContactRole(ctx, d.cache.Engagement.ID, contact.ID)
	if err != nil {
		return outcome, err
	}
	outcome.RoleCreated = created

	return outcome, nil
}

// refresh resolves the account and engagement for a new service id.
func (d *Driver) refresh(ctx context.Context, row ServiceUserRow) (ReconciliationCache, bool, error) {
	accountName := OrgNoteSegment(row.OrganisationNotes, OrgNoteNameIndex)
	accountID, err := d.resolver.ResolveAccount(ctx, accountName)
	if err != nil {
		return ReconciliationCache{}, false, err
	}
	row.AccountID = accountID

	engagement, created, err := d.resolver.ResolveEngagement(ctx, row)
	if err != nil {
		return ReconciliationCache{}, false, err
	}

	// An existing engagement's owner wins over the name match.
	if engagement != nil && engagement.AccountID != "" {
		accountID = engagement.AccountID
	}

	return ReconciliationCache{
		ServiceID:  row.ServiceID,
		Engagement: engagement,
		AccountID:  accountID,
		loaded:     true,
	}, created, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
