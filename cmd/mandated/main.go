// Command mandated runs the mandate enforcement and audit service: it
// keeps the commit drain loop anchoring ledger events to the configured
// chain, and offers one-shot subcommands for draining, evidence export,
// and chain verification.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/covenantlabs/mandate/pkg/chain"
	"github.com/covenantlabs/mandate/pkg/config"
	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/enforce"
	"github.com/covenantlabs/mandate/pkg/export"
	"github.com/covenantlabs/mandate/pkg/ledger"
	"github.com/covenantlabs/mandate/pkg/mandate"
	"github.com/covenantlabs/mandate/pkg/mandate/ownerlock"
	"github.com/covenantlabs/mandate/pkg/observability"
	"github.com/covenantlabs/mandate/pkg/rules"
	"github.com/covenantlabs/mandate/pkg/store"
	"github.com/covenantlabs/mandate/pkg/violations"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 1 {
		cmd = args[1]
	}

	switch cmd {
	case "serve":
		return runServe(stderr)
	case "commit":
		return runCommit(stdout, stderr)
	case "check":
		return runCheck(args[2:], stdout, stderr)
	case "export":
		return runExport(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mandated [command]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            run the service with the commit drain loop (default)")
	fmt.Fprintln(w, "  commit           drain all uncommitted events once and exit")
	fmt.Fprintln(w, "  check            evaluate a trade proposal against an owner's active mandate")
	fmt.Fprintln(w, "  export <owner>   write the owner's evidence bundle to stdout (or S3 if configured)")
	fmt.Fprintln(w, "  verify <owner>   verify the owner's hash chain")
	fmt.Fprintln(w, "  help             show this help")
}

// app holds the wired service graph.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	logger     *slog.Logger
	obs        *observability.Provider
	ledger     *ledger.Ledger
	mandates   *mandate.Service
	violations *violations.Recorder
	enforcer   *enforce.Enforcer
	committer  *chain.Committer
	exporter   *export.Exporter
}

func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	if cfg.ProfilesDir != "" {
		profile, err := config.LoadProfile(cfg.ProfilesDir, cfg.ChainCluster)
		if err != nil {
			return nil, fmt.Errorf("cluster profile: %w", err)
		}
		cfg.ApplyProfile(profile)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var obs *observability.Provider
	if cfg.TelemetryEnabled {
		var err error
		obs, err = observability.New(ctx, &observability.Config{
			ServiceName:    "mandated",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SampleRate:     1.0,
			Enabled:        true,
			Insecure:       cfg.Environment == "development",
		})
		if err != nil {
			return nil, fmt.Errorf("observability: %w", err)
		}
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	eventStore := ledger.NewSQLStore(db)
	mandateStore := mandate.NewSQLStore(db)
	violationStore := violations.NewSQLStore(db)
	for _, init := range []interface {
		Init(context.Context) error
	}{eventStore, mandateStore, violationStore} {
		if err := init.Init(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	var locks ownerlock.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		locks = ownerlock.NewRedis(redis.NewClient(opts), 0)
		logger.Info("distributed owner locking enabled")
	}

	atomic := store.SQLAtomic(db)
	lg := ledger.New(eventStore, logger)
	mandates := mandate.New(mandateStore, lg, locks, atomic, logger)
	recorder := violations.New(violationStore, lg, atomic, logger)
	enforcer := enforce.New(mandates, recorder, obs, logger)

	var client chain.Client
	var signer chain.Signer
	if cfg.ChainConfigured() {
		signer, err = chain.LoadEd25519Signer(cfg.ChainKeyFile)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("chain key: %w", err)
		}
		client = chain.NewRPCClient(cfg.ChainEndpoint, cfg.ChainCluster, &http.Client{
			Timeout: cfg.SubmitTimeout,
		})
		logger.Info("chain commitment configured",
			"cluster", cfg.ChainCluster, "endpoint", cfg.ChainEndpoint)
	} else {
		logger.Warn("chain commitment not configured, events accrue locally")
	}
	committer := chain.New(lg, client, signer, chain.Config{
		Interval:      cfg.CommitInterval,
		SubmitTimeout: cfg.SubmitTimeout,
	}, obs, logger)

	var sink export.Sink
	if cfg.ExportBucket != "" {
		sink, err = export.NewS3Sink(ctx, export.S3Config{
			Bucket: cfg.ExportBucket,
			Region: os.Getenv("AWS_REGION"),
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("export sink: %w", err)
		}
	}
	exporter := export.New(lg, sink, cfg.ExportPrefix, logger)

	return &app{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		obs:        obs,
		ledger:     lg,
		mandates:   mandates,
		violations: recorder,
		enforcer:   enforcer,
		committer:  committer,
		exporter:   exporter,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if a.obs != nil {
		_ = a.obs.Shutdown(ctx)
	}
	_ = a.db.Close()
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lv = slog.LevelDebug
	case "WARN":
		lv = slog.LevelWarn
	case "ERROR":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func runServe(stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close(context.Background())

	a.logger.Info("mandated started",
		"database", a.cfg.DatabaseURL,
		"cluster", a.cfg.ChainCluster,
		"chain_configured", a.committer.Configured())

	a.committer.Run(ctx, a.cfg.DrainInterval)
	a.logger.Info("mandated stopped")
	return 0
}

func runCommit(stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close(context.Background())

	results, err := a.committer.CommitBatch(ctx, "")
	if err != nil {
		fmt.Fprintf(stderr, "drain failed: %v\n", err)
		return 1
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(stdout, "%s\t%s\t%v\n", r.EventID, r.Status, r.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\n", r.EventID, r.Status)
	}
	return 0
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner id")
	symbol := fs.String("symbol", "", "underlying symbol")
	direction := fs.String("direction", string(contracts.DirectionSellToOpen), "trade direction")
	delta := fs.Float64("delta", 0, "per-leg option delta")
	dailyLoss := fs.Float64("daily-loss", 0, "today's realized loss as a fraction of NAV")
	prospective := fs.Float64("prospective-loss", 0, "additional loss this trade could realize, as a fraction of NAV")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *owner == "" || *symbol == "" {
		fmt.Fprintln(stderr, "Usage: mandated check -owner <id> -symbol <sym> [-direction D] [-delta F] [-daily-loss F]")
		return 2
	}
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close(ctx)

	d := a.enforcer.Check(ctx, *owner, rules.Proposal{
		Symbol:                  *symbol,
		Direction:               contracts.TradeDirection(*direction),
		Delta:                   *delta,
		ProspectiveLossFraction: *prospective,
		Context:                 "operator check",
	}, rules.AccountState{
		DailyLossFraction: *dailyLoss,
		Now:               time.Now(),
	})

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 1
	}
	if !d.Allowed {
		return 1
	}
	return 0
}

func runExport(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: mandated export <owner>")
		return 2
	}
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close(ctx)

	bundle, err := a.exporter.Export(ctx, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "export failed: %v\n", err)
		return 1
	}

	if a.cfg.ExportBucket != "" {
		loc, err := a.exporter.Upload(ctx, bundle)
		if err != nil {
			fmt.Fprintf(stderr, "upload failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, loc)
		return 0
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 1
	}
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: mandated verify <owner>")
		return 2
	}
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close(ctx)

	if err := a.ledger.VerifyChain(ctx, args[0]); err != nil {
		fmt.Fprintf(stderr, "chain verification FAILED: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "chain verified for %s\n", args[0])
	return 0
}
