package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"nakamura/internal/acl"
	"nakamura/internal/config"
	"nakamura/internal/database"
	"nakamura/internal/event"
	"nakamura/internal/handler"
	"nakamura/internal/jwtauth"
	"nakamura/internal/messaging"
	"nakamura/internal/middleware"
	"nakamura/internal/personal"
	"nakamura/internal/postprocess"
	"nakamura/internal/session"
	"nakamura/internal/usermanager"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var migrationsFlag, policyFlag, issueToken string
	var migrateDown bool

	flagSet := pflag.NewFlagSet("nakamura", pflag.ContinueOnError)
	flagSet.StringVar(&migrationsFlag, "migrations", "", "path to the migrations directory (overrides MIGRATIONS_PATH)")
	flagSet.StringVar(&policyFlag, "policy", "", "path to the provisioning policy YAML file (overrides POLICY_FILE)")
	flagSet.StringVar(&issueToken, "issue-token", "", "print a signed token for the given user and exit")
	flagSet.BoolVar(&migrateDown, "migrate-down", false, "revert the most recent migration and exit (postgres backend)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if migrationsFlag != "" {
		cfg.MigrationsPath = migrationsFlag
	}
	if policyFlag != "" {
		cfg.PolicyFile = policyFlag
	}

	logger := newLogger(cfg)

	verifier, err := jwtauth.NewVerifier(jwtauth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	if issueToken != "" {
		token, err := verifier.Issue(issueToken)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	var (
		sessions session.Factory
		eventLog event.Log
		health   handler.HealthChecker
	)

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := database.Open(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("error closing database connection", "error", err)
			}
		}()
		logger.Info("database connection established")

		migrationsPath := getMigrationsPath(cfg.MigrationsPath)
		if migrateDown {
			state, err := db.MigrateDown(migrationsPath)
			if err != nil {
				return err
			}
			logger.Info("reverted node store migration", "version", state.Version)
			return nil
		}
		state, err := db.MigrateUp(migrationsPath)
		if err != nil {
			return err
		}
		logger.Info("node store schema ready", "version", state.Version, "migrations", migrationsPath)

		sessions = session.NewSQLFactory(db.DB)
		eventLog = event.NewStore(db.DB)
		health = db.Health
	default:
		if migrateDown {
			return errors.New("--migrate-down requires STORE_BACKEND=postgres")
		}
		logger.Warn("using in-memory storage, data is lost on restart")
		sessions = session.NewMemoryFactory()
		eventLog = event.NewMemLog()
	}

	provisioner, err := personal.NewProvisioner(acl.NameResolver{}, personal.Options{
		ReservedPrefixes: policy.ReservedPrefixes,
		UserProfileType:  policy.ProfileTypes.User,
		GroupProfileType: policy.ProfileTypes.Group,
		Logger:           logger.With("component", "provisioner"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize provisioner: %w", err)
	}

	bus := event.NewBus(cfg.EventQueueSize, logger.With("component", "bus"))
	defer bus.Close()
	bus.Subscribe(event.TopicPrefix, event.Recorder(eventLog, logger.With("component", "recorder")))

	eventLogger := logger.With("component", "events")
	trace := event.SinkFunc(func(_ context.Context, e event.Event) error {
		eventLogger.Debug("event published", "topic", e.Topic, "target", e.TargetID, "acting_user", e.ActingUser)
		return nil
	})
	translator := event.NewTranslator(event.Multi{trace, bus}, logger.With("component", "translator"))
	processor := postprocess.NewProcessor(provisioner, translator, logger.With("component", "postprocess"))

	deps := &handler.Deps{
		Config:   cfg,
		Users:    usermanager.NewManager(sessions, processor, logger.With("component", "usermanager")),
		Messages: messaging.NewService(sessions, logger.With("component", "messaging")),
		Events:   eventLog,
		Sessions: sessions,
		Health:   health,
		Logger:   logger,
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, deps)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Identify(verifier, logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Environment, "backend", cfg.Backend)
		serverErr <- server.ListenAndServe()
	}()

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("initiating graceful shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("waiting for in-flight requests to complete")
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown failed, forcing shutdown", "error", err)
			if err := server.Close(); err != nil {
				return fmt.Errorf("forced shutdown failed: %w", err)
			}
		}

		logger.Info("server shutdown complete")
	}

	return nil
}

// newLogger returns a JSON logger outside development and a text logger in it.
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// getMigrationsPath returns the path to the migrations directory.
// It checks the configured path, then the working directory, then the
// directory of the executable.
func getMigrationsPath(configured string) string {
	if configured != "" {
		return configured
	}

	// Try relative to working directory (for local development)
	if _, err := os.Stat("migrations"); err == nil {
		absPath, _ := filepath.Abs("migrations")
		return absPath
	}

	// Try relative to executable (for Docker)
	execPath, err := os.Executable()
	if err == nil {
		execDir := filepath.Dir(execPath)
		migrationsPath := filepath.Join(execDir, "migrations")
		if _, err := os.Stat(migrationsPath); err == nil {
			return migrationsPath
		}
	}

	// Default fallback
	return "/app/migrations"
}
