package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/accounts"
	"github.com/dvloznov/finance-bridge/internal/archive"
	"github.com/dvloznov/finance-bridge/internal/budget"
	"github.com/dvloznov/finance-bridge/internal/config"
	"github.com/dvloznov/finance-bridge/internal/feed"
	"github.com/dvloznov/finance-bridge/internal/ingest"
	"github.com/dvloznov/finance-bridge/internal/ledger"
	"github.com/dvloznov/finance-bridge/internal/logger"
	"github.com/dvloznov/finance-bridge/internal/notify"
	"github.com/dvloznov/finance-bridge/internal/webhook"
)

func main() {
	log := logger.NewWithLevel(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "alerts":
		runAlerts(log)
	case "summary":
		runSummary(log)
	case "sign":
		runSign(log)
	case "import":
		runImport(log)
	case "migrate":
		runMigrate(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Bridge CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  alerts    Evaluate budget alerts for a month")
	fmt.Println("  summary   Send the monthly budget summary")
	fmt.Println("  sign      Print the webhook signature for a body")
	fmt.Println("  import    Run one webhook payload through the event handler")
	fmt.Println("  migrate   Create the BigQuery import log table")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nConfiguration is read from the same environment as the bridge.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// deps holds what the ledger-backed commands share.
type deps struct {
	cfg     config.Config
	session *ledger.Session
	sink    notify.Sink
}

func loadDeps(log zerolog.Logger) deps {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	client := ledger.NewHTTPClient(cfg.Ledger, nil)
	return deps{
		cfg:     cfg,
		session: ledger.NewSession(client, cfg.Ledger.BudgetID, cfg.Ledger.Timeout, log),
		sink:    notify.New(cfg.Notify),
	}
}

func (d deps) close(ctx context.Context, log zerolog.Logger) {
	if err := d.session.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Ledger session shutdown failed")
	}
}

func monthFlag(fs *flag.FlagSet) *string {
	return fs.String("month", "", "Budget month as YYYY-MM (defaults to the current month)")
}

func resolveMonth(log zerolog.Logger, month string, loc *time.Location) string {
	if month == "" {
		return budget.CurrentMonth(time.Now(), loc)
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		log.Fatal().Str("month", month).Msg("Error: -month must be YYYY-MM")
	}
	return month
}

func runAlerts(log zerolog.Logger) {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	month := monthFlag(fs)
	fs.Parse(os.Args[2:])

	d := loadDeps(log)
	m := resolveMonth(log, *month, d.cfg.Alerts.Location)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	defer d.close(ctx, log)

	report, err := budget.NewEngine(d.session, d.sink, d.cfg.Alerts, log).Evaluate(ctx, m)
	if err != nil {
		log.Error().Err(err).Msg("Budget alert failed")
		return
	}

	switch {
	case report.MonthMissing:
		fmt.Printf("No budget for %s.\n", m)
	case report.Message == "":
		fmt.Printf("%s: no alerts across %d categories.\n", m, len(report.Rows))
	default:
		fmt.Printf("%s: %s\n", m, report.Message)
	}
}

func runSummary(log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	month := monthFlag(fs)
	fs.Parse(os.Args[2:])

	d := loadDeps(log)
	m := resolveMonth(log, *month, d.cfg.Alerts.Location)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	defer d.close(ctx, log)

	summary, err := budget.NewEngine(d.session, d.sink, d.cfg.Alerts, log).MonthlySummary(ctx, m)
	if err != nil {
		log.Error().Err(err).Msg("Monthly summary failed")
		return
	}
	if summary.MonthMissing {
		fmt.Printf("No budget for %s.\n", m)
		return
	}
	fmt.Printf("%s: %s\n", m, summary.Message)
}

func runSign(log zerolog.Logger) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the raw webhook body")
	secret := fs.String("secret", os.Getenv("WEBHOOK_SECRET"), "Shared secret (or set WEBHOOK_SECRET env)")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli sign -file PATH [-secret S]")
	}
	if *secret == "" {
		log.Fatal().Msg("Error: no secret given and WEBHOOK_SECRET is not set")
	}

	body, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read body")
	}

	fmt.Printf("%s: %s\n", webhook.SignatureHeader, webhook.NewVerifier(*secret).Sign(body))
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a webhook payload JSON file")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli import -file PATH")
	}

	payload, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read payload")
	}

	d := loadDeps(log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	handler := ingest.NewHandler(d.session, accounts.NewResolver(d.cfg.Accounts), feed.NewNormalizer(), d.sink, log)
	res := handler.Handle(ctx, payload)
	d.close(ctx, log)

	out := map[string]interface{}{
		"status":        res.Status,
		"account_uid":   res.AccountUID,
		"feed_item_uid": res.FeedItemUID,
		"added":         res.Import.Added,
		"updated":       res.Import.Updated,
		"notified":      res.Notified,
	}
	if res.Transaction != nil {
		out["transaction"] = res.Transaction
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)

	if res.Status == ingest.StatusFailed {
		os.Exit(1)
	}
}

func runMigrate(log zerolog.Logger) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	project := fs.String("project", os.Getenv("ARCHIVE_PROJECT"), "GCP project ID (or set ARCHIVE_PROJECT env)")
	dataset := fs.String("dataset", os.Getenv("ARCHIVE_DATASET"), "BigQuery dataset ID (or set ARCHIVE_DATASET env)")
	location := fs.String("location", "EU", "Dataset location used when the dataset is created")
	fs.Parse(os.Args[2:])

	if *project == "" || *dataset == "" {
		log.Fatal().Msg("Usage: cli migrate -project ID -dataset NAME")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	importLog, err := archive.NewImportLog(ctx, *project, *dataset, archive.ClientOptions(os.Getenv("ARCHIVE_CREDENTIALS_FILE"))...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer importLog.Close()

	created, err := importLog.EnsureTable(ctx, *location)
	if err != nil {
		log.Error().Err(err).Msg("Migration failed")
		return
	}
	if created {
		fmt.Printf("Created %s.%s.ledger_imports\n", *project, *dataset)
	} else {
		fmt.Printf("%s.%s.ledger_imports is up to date.\n", *project, *dataset)
	}
}
