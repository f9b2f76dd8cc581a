package reconcile

import (
	"sync"
	"time"
)

// Progress counts what a run has done. The driver writes it; the status
// server reads snapshots from another goroutine.
type Progress struct {
	mu   sync.Mutex
	snap ProgressSnapshot
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	RunID              string     `json:"run_id"`
	State              string     `json:"state"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	CurrentServiceID   string     `json:"current_service_id,omitempty"`
	LastLine           int        `json:"last_line"`
	RowsProcessed      int        `json:"rows_processed"`
	RowsSkipped        int        `json:"rows_skipped"`
	EngagementsCreated int        `json:"engagements_created"`
	ContactsCreated    int        `json:"contacts_created"`
	ContactsUpdated    int        `json:"contacts_updated"`
	ContactsFailed     int        `json:"contacts_failed"`
	RolesCreated       int        `json:"roles_created"`
	Error              string     `json:"error,omitempty"`
}

// Run states.
const (
	StateRunning  = "running"
	StateFinished = "finished"
	StateFailed   = "failed"
)

func NewProgress(runID string) *Progress {
	return &Progress{snap: ProgressSnapshot{
		RunID:     runID,
		State:     StateRunning,
		StartedAt: time.Now().UTC(),
	}}
}

// Snapshot returns a copy of the current counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Progress) observe(o RowOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap.RowsProcessed++
	p.snap.LastLine = o.Line
	p.snap.CurrentServiceID = o.ServiceID
	if o.EngagementCreated {
		p.snap.EngagementsCreated++
	}
	if o.Skipped {
		p.snap.RowsSkipped++
		return
	}
	switch o.Contact.Action {
	case ContactCreated:
		p.snap.ContactsCreated++
	case ContactUpdated:
		p.snap.ContactsUpdated++
	case ContactCreateFailed, ContactUpdateFailed:
		p.snap.ContactsFailed++
	}
	if o.RoleCreated {
		p.snap.RolesCreated++
	}
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	p.snap.State = StateFinished
	p.snap.FinishedAt = &now
}

func (p *Progress) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	p.snap.State = StateFailed
	p.snap.FinishedAt = &now
	p.snap.Error = err.Error()
}
