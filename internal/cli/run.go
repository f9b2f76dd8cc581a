package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/csvinput"
	"github.com/JonMunkholm/servicesync/internal/journal"
	"github.com/JonMunkholm/servicesync/internal/logging"
	"github.com/JonMunkholm/servicesync/internal/reconcile"
	"github.com/JonMunkholm/servicesync/internal/salesforce"
	"github.com/JonMunkholm/servicesync/internal/web"
)

// ConnectFunc opens the CRM session for a run.
type ConnectFunc func(ctx context.Context, cfg *config.Config) (reconcile.Session, error)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	CSVPath    string
	StatusAddr string

	// Connect overrides the CRM login (for testing). If nil, a SOAP login is made.
	Connect ConnectFunc
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile the service users export into Salesforce",
		Long: `Reconcile every row of the service users export.

Rows are processed one at a time in file order, with ROW_DELAY between rows.
The run stops at the first row that fails; rows already done are found, not
duplicated, when the export is run again.

Example:
  servicesync run --csv ./service_users.csv
  servicesync run --status-addr :8080 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.CSVPath, "csv", "", "path to the export (overrides CSV_PATH)")
	cmd.Flags().StringVar(&opts.StatusAddr, "status-addr", "", "serve /status on this address (overrides STATUS_ADDR)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := config.Load(func(c *config.Config) {
		if opts.CSVPath != "" {
			c.Input.CSVPath = opts.CSVPath
		}
		if opts.StatusAddr != "" {
			c.Status.Addr = opts.StatusAddr
		}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	setupLogging(cmd, opts.RootOptions, cfg.Logging)

	runID, err := uuid.NewV7()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate run id", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRun(ctx, runID.String())
	logger := logging.FromContext(ctx)

	logger.Info("configuration loaded",
		"csv", cfg.Input.CSVPath,
		"domain", cfg.Salesforce.Domain,
		"contact_lookup", cfg.Sync.ContactLookup,
		"engagement_mode", cfg.Sync.EngagementMode,
		"missing_engagement", cfg.Sync.MissingEngagement,
		"row_delay", cfg.Sync.RowDelay,
	)

	jnl, err := journal.Open(ctx, cfg.Journal.DSN)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if err := jnl.Close(); err != nil {
			logger.Error("error closing journal", "error", err)
		}
	}()

	src, err := csvinput.Open(cfg.Input.CSVPath)
	if err != nil {
		logger.Error("failed to open input", "error", err, "hint", reconcile.FormatUserError(err))
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer src.Close()

	connect := opts.Connect
	if connect == nil {
		connect = login
	}
	session, err := connect(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to salesforce", "error", err, "hint", reconcile.FormatUserError(err))
		return WrapExitError(ExitCommandError, "failed to connect to salesforce", err)
	}

	progress := reconcile.NewProgress(runID.String())
	driver := reconcile.NewDriver(reconcile.NewResolver(session, cfg, jnl), cfg, progress)

	if cfg.Status.Addr != "" {
		srv := web.NewServer(cfg.Status, func() web.Status {
			return web.Status{ProgressSnapshot: progress.Snapshot(), InputPercent: src.Progress()}
		})
		ln, err := net.Listen("tcp", cfg.Status.Addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start status server", err)
		}
		go func() {
			if err := srv.Serve(ctx, ln); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown error", "error", err)
			}
		}()
	}

	runErr := driver.Run(ctx, src)

	snap := progress.Snapshot()
	if err := writeOutput(cmd.OutOrStdout(), opts.Format, snap, func(w io.Writer) {
		printSummary(w, snap)
	}); err != nil {
		logger.Error("failed to write summary", "error", err)
	}

	if runErr != nil {
		msg := reconcile.MapError(runErr)
		logger.Error("sync aborted", "error", runErr, "code", msg.Code, "hint", reconcile.FormatUserError(runErr))

		var rowErr *reconcile.ReconciliationError
		if errors.As(runErr, &rowErr) {
			return WrapExitError(ExitFailure, fmt.Sprintf("sync aborted at line %d", rowErr.Line), runErr)
		}
		return WrapExitError(ExitFailure, "sync aborted", runErr)
	}
	return nil
}

func login(ctx context.Context, cfg *config.Config) (reconcile.Session, error) {
	creds := salesforce.Credentials{
		Username:      cfg.Salesforce.Username,
		Password:      cfg.Salesforce.Password,
		SecurityToken: cfg.Salesforce.SecurityToken,
		Domain:        cfg.Salesforce.Domain,
		ClientID:      cfg.Salesforce.ClientID,
		APIVersion:    cfg.Salesforce.APIVersion,
	}
	client, err := salesforce.Login(ctx, creds, salesforce.NewHTTPClient(cfg.Salesforce.RequestTimeout))
	if err != nil {
		return nil, err
	}
	slog.Info("logged in to salesforce", "instance", client.InstanceURL())
	return client, nil
}

// setupLogging sends logs to stderr so stdout carries only command output.
func setupLogging(cmd *cobra.Command, opts *RootOptions, lc config.LoggingConfig) {
	level := lc.Level
	if opts.Verbose {
		level = "debug"
	}
	logging.SetupWriter(cmd.ErrOrStderr(), level, lc.Format)
}

func printSummary(w io.Writer, s reconcile.ProgressSnapshot) {
	fmt.Fprintf(w, "run %s %s\n", s.RunID, s.State)
	fmt.Fprintf(w, "  rows processed:      %d\n", s.RowsProcessed)
	fmt.Fprintf(w, "  rows skipped:        %d\n", s.RowsSkipped)
	fmt.Fprintf(w, "  engagements created: %d\n", s.EngagementsCreated)
	fmt.Fprintf(w, "  contacts created:    %d\n", s.ContactsCreated)
	fmt.Fprintf(w, "  contacts updated:    %d\n", s.ContactsUpdated)
	fmt.Fprintf(w, "  contacts failed:     %d\n", s.ContactsFailed)
	fmt.Fprintf(w, "  roles created:       %d\n", s.RolesCreated)
	if s.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", s.Error)
	}
}
