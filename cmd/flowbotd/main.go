package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/botforge/flowbot/internal/genai"
	"github.com/botforge/flowbot/internal/lockfile"
	"github.com/botforge/flowbot/internal/scheduler"
	"github.com/botforge/flowbot/internal/service"
	"github.com/botforge/flowbot/internal/store"
	"github.com/botforge/flowbot/internal/util"
)

// DefaultStateDir is the default directory for flowbot state data
const DefaultStateDir = "/var/lib/flowbot"

func main() {
	initializeLogger(util.ParseBoolEnv("FLOWBOT_DEBUG", false))

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// Singleton guard: exactly one flowbot instance per host.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire singleton lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		lock.Release()
		os.Exit(1)
	}
	defer st.Close()

	responder := buildResponder(flags)

	svcOpts := []service.Option{
		service.WithGatewayDriver(*flags.gatewayDriver),
		service.WithPollInterval(time.Duration(*flags.pollSeconds) * time.Second),
	}
	if *flags.encryptionKey != "" {
		svcOpts = append(svcOpts, service.WithEncryptionKey(*flags.encryptionKey))
	} else {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, bot tokens are assumed plaintext")
	}

	svc := service.New(st, responder, svcOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		slog.Error("flowbot failed to start", "error", err)
		lock.Release()
		os.Exit(1)
	}

	// Release the lock on termination signals as well as normal exit.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	slog.Info("Received termination signal, shutting down", "signal", sig.String())

	cancel()
	svc.Stop()
	slog.Info("flowbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	GatewayDriver string
	GenAIURL      string
	OpenAIKey     string
	EncryptionKey string
	PollSeconds   int
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	gatewayDriver *string
	genaiURL      *string
	openaiKey     *string
	encryptionKey *string
	pollSeconds   *int
}

// initializeLogger sets up structured logging; $FLOWBOT_DEBUG enables debug level
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("FLOWBOT_STATE_DIR"),
		GatewayDriver: os.Getenv("GATEWAY_DRIVER"),
		GenAIURL:      os.Getenv("GENAI_URL"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		EncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),
		PollSeconds:   util.ParseIntEnv("FLOWBOT_POLL_INTERVAL", int(scheduler.DefaultPollInterval/time.Second)),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FLOWBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FLOWBOT_STATE_DIR", config.StateDir,
		"GATEWAY_DRIVER", config.GatewayDriver,
		"GENAI_URL_SET", config.GenAIURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TOKEN_ENCRYPTION_KEY_SET", config.EncryptionKey != "",
		"FLOWBOT_POLL_INTERVAL", config.PollSeconds)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for flowbot data (overrides $FLOWBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		gatewayDriver: flag.String("gateway-driver", config.GatewayDriver, "registered gateway connector name (overrides $GATEWAY_DRIVER)"),
		genaiURL:      flag.String("genai-url", config.GenAIURL, "text-generation endpoint URL (overrides $GENAI_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the fallback responder (overrides $OPENAI_API_KEY)"),
		encryptionKey: flag.String("token-encryption-key", config.EncryptionKey, "bot token encryption key (overrides $TOKEN_ENCRYPTION_KEY)"),
		pollSeconds:   flag.Int("poll-interval", config.PollSeconds, "scheduler poll interval in seconds (overrides $FLOWBOT_POLL_INTERVAL)"),
	}
	flag.Parse()

	// Required configuration; missing values are fatal at boot.
	if *flags.dbDSN == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if *flags.gatewayDriver == "" {
		slog.Error("GATEWAY_DRIVER is required")
		os.Exit(1)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"gatewayDriver", *flags.gatewayDriver,
		"genaiURL_set", *flags.genaiURL != "",
		"openaiKeySet", *flags.openaiKey != "",
		"pollSeconds", *flags.pollSeconds)

	return flags
}

// buildStore selects the Postgres or SQLite backend from the DSN shape.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildResponder prefers the external text-generation endpoint and falls
// back to direct OpenAI access. Both absent disables ai_response actions.
func buildResponder(flags Flags) genai.Responder {
	if *flags.genaiURL != "" {
		r, err := genai.NewHTTPResponder(genai.WithURL(*flags.genaiURL))
		if err != nil {
			slog.Error("Failed to build genai HTTP responder", "error", err)
			return nil
		}
		return r
	}
	if *flags.openaiKey != "" {
		r, err := genai.NewOpenAIResponder(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Error("Failed to build OpenAI responder", "error", err)
			return nil
		}
		return r
	}
	slog.Info("No text-generation backend configured, ai_response actions disabled")
	return nil
}
