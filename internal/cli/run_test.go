package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/journal"
	"github.com/JonMunkholm/servicesync/internal/reconcile"
	"github.com/JonMunkholm/servicesync/internal/salesforce"
)

// emptyOrg is a CRM instance with no records that accepts every create.
type emptyOrg struct {
	*httptest.Server

	mu      sync.Mutex
	creates []string
	failing bool
}

func newEmptyOrg(t *testing.T) *emptyOrg {
	t.Helper()
	org := &emptyOrg{}
	r := chi.NewRouter()
	r.Route("/services/data/v59.0", func(r chi.Router) {
		r.Get("/query/", func(w http.ResponseWriter, req *http.Request) {
			org.mu.Lock()
			failing := org.failing
			org.mu.Unlock()
			if failing && strings.Contains(req.URL.Query().Get("q"), "FROM Contact") {
				w.WriteHeader(http.StatusServiceUnavailable)
				io.WriteString(w, `[{"message":"try later","errorCode":"SERVER_UNAVAILABLE"}]`)
				return
			}
			io.WriteString(w, `{"totalSize":0,"done":true,"records":[]}`)
		})
		r.Post("/sobjects/{object}/", func(w http.ResponseWriter, req *http.Request) {
			org.mu.Lock()
			object := chi.URLParam(req, "object")
			org.creates = append(org.creates, object)
			id := fmt.Sprintf("%s-%d", object, len(org.creates))
			org.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":%q,"success":true,"errors":[]}`, id)
		})
	})
	org.Server = httptest.NewServer(r)
	t.Cleanup(org.Close)
	return org
}

func (o *emptyOrg) connect(context.Context, *config.Config) (reconcile.Session, error) {
	return salesforce.NewClient(o.URL, "session", "59.0", o.Client()), nil
}

func (o *emptyOrg) createsOf(object string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.creates {
		if c == object {
			n++
		}
	}
	return n
}

func setRunEnv(t *testing.T, journalDSN string) {
	t.Helper()
	t.Setenv("CSV_PATH", "")
	t.Setenv("LOGIN_USERNAME", "sync@example.gc.ca")
	t.Setenv("LOGIN_PASSWORD", "pw")
	t.Setenv("GENERIC_ACCOUNT_ID", "001GENERIC")
	t.Setenv("ENGAGEMENT_RECORD_TYPE", "012RT")
	t.Setenv("ENGAGEMENT_STANDARD_PRICEBOOK_ID", "01uPB")
	t.Setenv("ENGAGEMENT_PRODUCT_ID", "01tPROD")
	t.Setenv("ENGAGEMENT_MODE", "")
	t.Setenv("CONTACT_LOOKUP", "")
	t.Setenv("MISSING_ENGAGEMENT", "")
	t.Setenv("ROW_DELAY", "0s")
	t.Setenv("JOURNAL_DSN", journalDSN)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STATUS_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
}

func writeCSV(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service_users.csv")
	content := "service_id,service_name,service_organisation_notes,service_restricted,user_id,user_name,user_email\n" +
		strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execRun(t *testing.T, org *emptyOrg, args ...string) (reconcile.ProgressSnapshot, error) {
	t.Helper()
	opts := &RunOptions{RootOptions: &RootOptions{Format: "json"}, Connect: org.connect}
	cmd := newRunCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()

	var snap reconcile.ProgressSnapshot
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	}
	return snap, err
}

func TestRun(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "journal.db")
	setRunEnv(t, dsn)
	org := newEmptyOrg(t)

	csvPath := writeCSV(t,
		"svc-1,Passports,Health Canada > HC Digital,false,u-1,Ada Lovelace,ada@example.gc.ca",
		"svc-1,Passports,Health Canada > HC Digital,false,u-2,Grace Hopper,grace@example.gc.ca",
	)

	snap, err := execRun(t, org, "--csv", csvPath)
	require.NoError(t, err)

	assert.Equal(t, reconcile.StateFinished, snap.State)
	assert.Equal(t, 2, snap.RowsProcessed)
	assert.Equal(t, 1, snap.EngagementsCreated)
	assert.Equal(t, 2, snap.ContactsCreated)
	assert.Equal(t, 2, snap.RolesCreated)

	assert.Equal(t, 1, org.createsOf("Opportunity"))
	assert.Equal(t, 1, org.createsOf("OpportunityLineItem"))
	assert.Equal(t, 2, org.createsOf("Contact"))
	assert.Equal(t, 2, org.createsOf("OpportunityContactRole"))

	j, err := journal.Open(context.Background(), dsn)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.List(context.Background(), snap.RunID)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestRun_AbortsWithExitFailure(t *testing.T) {
	setRunEnv(t, "")
	org := newEmptyOrg(t)
	org.failing = true

	csvPath := writeCSV(t, "svc-1,Passports,,false,u-1,Ada Lovelace,ada@example.gc.ca")

	snap, err := execRun(t, org, "--csv", csvPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "sync aborted at line 2")
	assert.Equal(t, reconcile.StateFailed, snap.State)
	assert.Contains(t, snap.Error, "SERVER_UNAVAILABLE")
}

func TestRun_ConfigErrors(t *testing.T) {
	setRunEnv(t, "")
	org := newEmptyOrg(t)

	_, err := execRun(t, org)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "CSV_PATH is required")

	_, err = execRun(t, org, "--csv", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open input")

	csvPath := writeCSV(t, "svc-1,Passports,,false,u-1,Ada Lovelace,ada@example.gc.ca")
	_, err = execRun(t, org, "--csv", csvPath, "--status-addr", "127.0.0.1:99999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to start status server")
	assert.Zero(t, org.createsOf("Opportunity"), "no row work before the listener is bound")
}

func TestJournalCommand(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "journal.db")
	t.Setenv("JOURNAL_DSN", dsn)
	t.Setenv("DATABASE_URL", "")

	j, err := journal.Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), journal.Entry{
		RunID: "run-1", Operation: "Contact create for 'a@example.gc.ca'", Object: "Contact", RecordID: "003A", Success: true,
	}))
	require.NoError(t, j.Record(context.Background(), journal.Entry{
		RunID: "run-1", Operation: "ContactRole add", Object: "OpportunityContactRole", Detail: "status 400", Success: false,
	}))
	require.NoError(t, j.Close())

	t.Run("text", func(t *testing.T) {
		cmd := NewRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"journal", "run-1"})
		require.NoError(t, cmd.Execute())

		text := out.String()
		assert.Contains(t, text, "OBJECT")
		assert.Contains(t, text, "003A")
		assert.Contains(t, text, "FAILED: status 400")
	})

	t.Run("json", func(t *testing.T) {
		cmd := NewRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"journal", "run-1", "--format", "json"})
		require.NoError(t, cmd.Execute())

		var entries []journal.Entry
		require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "003A", entries[0].RecordID)
		assert.False(t, entries[1].Success)
	})

	t.Run("unknown run", func(t *testing.T) {
		cmd := NewRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"journal", "run-2"})
		require.NoError(t, cmd.Execute())
		assert.Equal(t, "no entries\n", out.String())
	})
}

func TestJournalCommand_RequiresDSN(t *testing.T) {
	t.Setenv("JOURNAL_DSN", "")
	t.Setenv("DATABASE_URL", "")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"journal", "run-1"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	setRunEnv(t, "")
	t.Setenv("CSV_PATH", "users.csv")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Password: [MASKED]")
	assert.NotContains(t, out.String(), `"pw"`)
}
