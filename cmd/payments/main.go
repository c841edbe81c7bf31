package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/givehub/payments/internal/audit"
	"github.com/givehub/payments/internal/config"
	"github.com/givehub/payments/internal/gateway"
	"github.com/givehub/payments/internal/http_api"
	"github.com/givehub/payments/internal/ledger"
	"github.com/givehub/payments/internal/methods"
	"github.com/givehub/payments/internal/notifier"
	"github.com/givehub/payments/internal/reconciler"
	"github.com/givehub/payments/internal/recurring"
	"github.com/givehub/payments/internal/repository"
	"github.com/givehub/payments/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "payments",
		Usage: "Payments is the donation and payment ledger service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "API port"},
			&cli.StringFlag{Name: "stripe-secret-key", Aliases: []string{"k"}, Usage: "Card gateway secret key"},
			&cli.StringFlag{Name: "stripe-webhook-secret", Aliases: []string{"w"}, Usage: "Card gateway webhook signing secret"},
			&cli.StringFlag{Name: "default-currency", Aliases: []string{"c"}, Usage: "Default donation currency"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("stripe-secret-key") {
		cfg.StripeSecretKey = c.String("stripe-secret-key")
	}
	if c.IsSet("stripe-webhook-secret") {
		cfg.StripeWebhookSecret = c.String("stripe-webhook-secret")
	}
	if c.IsSet("default-currency") {
		cfg.DefaultCurrency = c.String("default-currency")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Initialize the card gateway and the payment components
	stripeGateway := gateway.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, db, log)
	auditRecorder := audit.NewRecorder(db, log)
	recipientNotifier := notifier.NewLogNotifier(log)

	methodStore := methods.NewStore(db, stripeGateway, auditRecorder, log)
	donationLedger := ledger.NewLedger(db, stripeGateway, auditRecorder, recipientNotifier, log)
	recurringManager := recurring.NewManager(db, stripeGateway, auditRecorder, recipientNotifier, log)
	webhookReconciler := reconciler.NewReconciler(db, auditRecorder, log)

	apiServer := http_api.NewHTTPServer(methodStore, donationLedger, recurringManager, webhookReconciler, stripeGateway, cfg.APIPort, cfg.DefaultCurrency, log)

	go apiServer.Start()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server ", "error ", err)
	}
	return db.Close()
}
