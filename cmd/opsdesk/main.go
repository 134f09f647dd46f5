// Command opsdesk runs maintenance tasks against the opsdesk store: listing
// the audit trail, bootstrapping the first administrator, reporting paid
// commission totals and running change detection over exported rows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"opsdesk/internal/changedetect"
	"opsdesk/internal/config"
	"opsdesk/internal/core"
	"opsdesk/internal/logging"
	"opsdesk/pkg/domain"
)

var (
	exitFunc   = os.Exit
	loadConfig = func() (config.Config, error) { return config.Load() }
)

const usage = `usage: opsdesk <command> [flags]

commands:
  audit             print audit entries as JSON lines
  analyze           run change detection over a JSON rows file
  bootstrap-admin   create the first administrator
  commission-total  print the paid commission total of an ambassador
`

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "analyze":
		err = runAnalyze(args[1:], stdout, stderr)
	case "audit":
		err = withApp(ctx, stderr, func(a *app) error { return runAudit(ctx, a, args[1:], stdout, stderr) })
	case "bootstrap-admin":
		err = withApp(ctx, stderr, func(a *app) error { return runBootstrapAdmin(ctx, a, args[1:], stdout, stderr) })
	case "commission-total":
		err = withApp(ctx, stderr, func(a *app) error { return runCommissionTotal(ctx, a, args[1:], stdout, stderr) })
	case "-h", "-help", "--help", "help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "opsdesk %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// errUsage reports bad arguments; the flag set has already printed why.
var errUsage = errors.New("usage")

// app holds the wired service for commands that touch the store.
type app struct {
	svc    *core.Service
	store  core.PersistentStore
	logger *zap.Logger
}

func withApp(ctx context.Context, stderr io.Writer, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			_, _ = fmt.Fprintf(stderr, "close store: %v\n", cerr)
		}
	}()
	return fn(a)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	zl, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(zl)
	metrics, err := core.NewPrometheusMetricsRecorder(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	store, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine(), logger)
	if err != nil {
		_ = zl.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}
	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithAuditRecorder(logging.NewAuditRecorder(zl)),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(core.NewOTelTracer(nil)),
		core.WithBcryptCost(cfg.BcryptCost),
	)
	zl.Debug("store opened", zap.String("driver", cfg.Storage.Driver))
	return &app{svc: svc, store: store, logger: zl}, nil
}

func (a *app) close() error {
	err := a.store.Close()
	_ = a.logger.Sync()
	return err
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runAudit(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("audit", stderr)
	limit := fs.Int("limit", 50, "maximum entries to print (0 for all)")
	entity := fs.String("entity", "", "only entries for this entity type")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	logs, err := a.svc.ListAuditLogs(ctx, domain.AuditFilter{EntityType: domain.EntityType(*entity), Limit: *limit})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	for _, entry := range logs {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
	return nil
}

func runAnalyze(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("analyze", stderr)
	rowsPath := fs.String("rows", "", "JSON file holding an array of {date, value, segment, subsegment} rows")
	period := fs.Int("period", changedetect.DefaultPeriodDays, "comparison period in days")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *rowsPath == "" {
		_, _ = fmt.Fprintln(stderr, "analyze: -rows is required")
		return errUsage
	}
	data, err := os.ReadFile(filepath.Clean(*rowsPath))
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	var rows []changedetect.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(changedetect.Analyze(rows, *period))
}

func runBootstrapAdmin(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("bootstrap-admin", stderr)
	email := fs.String("email", "", "administrator email")
	password := fs.String("password", "", "administrator password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *email == "" || *password == "" {
		_, _ = fmt.Fprintln(stderr, "bootstrap-admin: -email and -password are required")
		return errUsage
	}
	users, err := a.svc.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Role == domain.RoleAdmin {
			return fmt.Errorf("an administrator already exists (%s)", u.Email)
		}
	}
	admin, _, err := a.svc.CreateAdmin(ctx, domain.SystemActor, *email, *password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "created admin %s (%s)\n", admin.Email, admin.ID)
	return err
}

func runCommissionTotal(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("commission-total", stderr)
	ambassadorID := fs.String("ambassador", "", "ambassador id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *ambassadorID == "" {
		_, _ = fmt.Fprintln(stderr, "commission-total: -ambassador is required")
		return errUsage
	}
	total, err := a.svc.PaidCommissionTotal(ctx, *ambassadorID)
	if err != nil {
		return err
	}
	return json.NewEncoder(stdout).Encode(struct {
		AmbassadorID   string `json:"ambassador_id"`
		PaidTotalCents int64  `json:"paid_total_cents"`
	}{*ambassadorID, total})
}
