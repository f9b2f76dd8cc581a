package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/journal"
	"github.com/JonMunkholm/servicesync/internal/salesforce"
)

type mutation struct {
	Object string
	ID     string
	Fields salesforce.Fields
}

// fakeSession answers queries from a table keyed by the exact SOQL text and
// records every call in order.
type fakeSession struct {
	results  map[string][]salesforce.Record
	queryErr map[string]error
	reject   map[string]bool // object -> create/update answers unsuccessful
	failOn   map[string]error

	queries []string
	creates []mutation
	updates []mutation
	nextID  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		results:  map[string][]salesforce.Record{},
		queryErr: map[string]error{},
		reject:   map[string]bool{},
		failOn:   map[string]error{},
	}
}

func (f *fakeSession) on(soql string, records ...salesforce.Record) {
	f.results[soql] = records
}

func (f *fakeSession) Query(_ context.Context, soql string) (*salesforce.QueryResult, error) {
	f.queries = append(f.queries, soql)
	if err := f.queryErr[soql]; err != nil {
		return nil, err
	}
	records := f.results[soql]
	if n, ok := queryLimit(soql); ok && len(records) > n {
		records = records[:n]
	}
	// Like the CRM, totalSize counts the rows left after LIMIT.
	total := len(records)
	return &salesforce.QueryResult{TotalSize: &total, Done: true, Records: records}, nil
}

func queryLimit(soql string) (int, bool) {
	i := strings.LastIndex(soql, " LIMIT ")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(soql[i+len(" LIMIT "):]))
	return n, err == nil
}

func (f *fakeSession) Create(_ context.Context, object string, fields salesforce.Fields) (salesforce.MutationResult, error) {
	if err := f.failOn[object]; err != nil {
		return salesforce.MutationResult{}, err
	}
	f.creates = append(f.creates, mutation{Object: object, Fields: fields})
	if f.reject[object] {
		ok := false
		return salesforce.MutationResult{StatusCode: 400, Save: &salesforce.SaveResult{
			Success: &ok,
			Errors:  []salesforce.APIError{{ErrorCode: "REQUIRED_FIELD_MISSING", Message: "Required fields are missing"}},
		}}, nil
	}
	f.nextID++
	id := fmt.Sprintf("%s-%03d", object, f.nextID)
	f.creates[len(f.creates)-1].ID = id
	ok := true
	return salesforce.MutationResult{StatusCode: 201, Save: &salesforce.SaveResult{ID: id, Success: &ok}}, nil
}

func (f *fakeSession) Update(_ context.Context, object, id string, fields salesforce.Fields) (salesforce.MutationResult, error) {
	if err := f.failOn[object]; err != nil {
		return salesforce.MutationResult{}, err
	}
	f.updates = append(f.updates, mutation{Object: object, ID: id, Fields: fields})
	if f.reject[object] {
		return salesforce.MutationResult{StatusCode: 404}, nil
	}
	return salesforce.MutationResult{StatusCode: 204}, nil
}

func (f *fakeSession) createsOf(object string) []mutation {
	var out []mutation
	for _, m := range f.creates {
		if m.Object == object {
			out = append(out, m)
		}
	}
	return out
}

// memJournal keeps entries in memory.
type memJournal struct {
	entries []journal.Entry
}

func (m *memJournal) Record(_ context.Context, e journal.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) List(_ context.Context, runID string) ([]journal.Entry, error) {
	var out []journal.Entry
	for _, e := range m.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memJournal) Close() error { return nil }

const genericAccountID = "001GENERIC"

var fixedToday = time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Engagement: config.EngagementConfig{
			GenericAccountID: genericAccountID,
			RecordTypeID:     "012RT",
			PricebookID:      "01uPB",
			ProductID:        "01tPROD",
		},
		Sync: config.SyncConfig{
			ContactLookup:     config.ContactLookupStrict,
			EngagementMode:    config.EngagementModeCreate,
			MissingEngagement: config.MissingEngagementSkip,
		},
	}
}

func newTestResolver(s Session, cfg *config.Config, j journal.Journal) *Resolver {
	r := NewResolver(s, cfg, j)
	r.now = func() time.Time { return fixedToday }
	return r
}

func ptr(s string) *string { return &s }
