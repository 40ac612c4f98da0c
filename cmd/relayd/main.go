package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aschepis/backscratcher/relay/chat"
	"github.com/aschepis/backscratcher/relay/config"
	"github.com/aschepis/backscratcher/relay/conversations"
	"github.com/aschepis/backscratcher/relay/convert"
	relaylogger "github.com/aschepis/backscratcher/relay/logger"
	"github.com/aschepis/backscratcher/relay/migrations"
	"github.com/aschepis/backscratcher/relay/ratelimit"
	"github.com/aschepis/backscratcher/relay/server"
)

const defaultAddr = ":8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		addr           = flag.String("addr", defaultAddr, "HTTP listen address")
		logFile        = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty         = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		dbPath         = flag.String("db", "relay.db", "Path to SQLite database file")
		migrationsPath = flag.String("migrations", "./migrations", "Path to database migration files")
	)
	flag.Parse()

	// Validate that --logfile and --pretty are mutually exclusive
	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	// Initialize logger with options
	logger, err := relaylogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info().
		Str("addr", *addr).
		Str("db", *dbPath).
		Msg("relayd starting")

	// Load server configuration
	configPath := config.GetServerConfigPath()
	appConfig, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}
	logger.Info().Msg("Loaded server configuration")

	// Override listen address from command line flag if provided
	if *addr != defaultAddr {
		appConfig.Server.Addr = *addr
	}
	if appConfig.Server.Addr == "" {
		appConfig.Server.Addr = defaultAddr
	}

	if appConfig.Gateway.BaseURL == "" {
		return fmt.Errorf("missing gateway.base_url in config file")
	}

	// ---------------------------
	// 1. Open SQLite + Run Migrations
	// ---------------------------

	logger.Info().Str("path", *dbPath).Msg("Initializing database")
	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, *migrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conversationStore := conversations.NewStore(db)

	// ---------------------------
	// 2. Create Upstream Gateway Client
	// ---------------------------

	logger.Info().Str("base_url", appConfig.Gateway.BaseURL).Msg("Creating gateway client")
	client, err := config.NewGatewayClient(appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}

	// ---------------------------
	// 3. Start Rate Limit Gate
	// ---------------------------

	gate, err := ratelimit.NewGate(ratelimit.Config{
		RPS:           appConfig.RateLimit.RPS,
		Burst:         appConfig.RateLimit.Burst,
		IdleTTL:       time.Duration(appConfig.RateLimit.IdleTTL) * time.Second,
		SweepSchedule: appConfig.RateLimit.SweepSchedule,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create rate limit gate: %w", err)
	}

	gateCtx, cancelGate := context.WithCancel(context.Background())
	defer cancelGate()
	go gate.Start(gateCtx)
	logger.Info().Msg("Rate limit gate started")

	// ---------------------------
	// 4. Assemble the Chat Relay
	// ---------------------------

	logger.Info().Msg("Assembling chat relay")
	converter := convert.NewClient(appConfig.Converter.URL, time.Duration(appConfig.Converter.Timeout)*time.Second, logger)
	assembler := chat.NewAssembler(converter, logger)
	composer := chat.NewComposer(appConfig)
	builder := chat.NewBuilder(appConfig, assembler, composer)
	namer := chat.NewNamer(conversationStore, logger)
	relay := chat.NewRelay(client, builder, namer, conversationStore, gate, appConfig.StreamTimeoutDuration(), logger)

	// ---------------------------
	// 5. Create and Start HTTP Server
	// ---------------------------

	srv := server.New(server.Config{
		Addr:   appConfig.Server.Addr,
		Logger: logger,
	}, relay, db)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Serve()
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancelGate()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Server shutdown did not finish cleanly")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info().Msg("relayd shutdown complete")
	return nil
}
