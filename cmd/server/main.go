package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/accessgate/internal/admin"
	"github.com/org/accessgate/internal/api"
	"github.com/org/accessgate/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr         string   `yaml:"listen_addr"`
	TLSCertFile        string   `yaml:"tls_cert"`
	TLSKeyFile         string   `yaml:"tls_key"`
	DBUrl              string   `yaml:"db_url"`
	MigrationsDir      string   `yaml:"migrations_dir"`
	ProviderURL        string   `yaml:"identity_provider_url"`
	VerifyTimeoutSec   int      `yaml:"verify_timeout_seconds"`
	AuditBufferSize    int      `yaml:"audit_buffer_size"`
	RateLimitRPS       int      `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	BootstrapAllowlist []string `yaml:"bootstrap_allowlist"`
	LogLevel           string   `yaml:"log_level"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("ACCESSGATE_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:       ":8600",
		MigrationsDir:    "migrations",
		VerifyTimeoutSec: 5,
		LogLevel:         "info",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("ACCESSGATE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("ACCESSGATE_PROVIDER_URL"); v != "" {
		cfg.ProviderURL = v
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.ProviderURL == "" {
		log.Fatal().Msg("identity_provider_url must be configured (or ACCESSGATE_PROVIDER_URL env var)")
	}

	ctx := context.Background()

	// Empty db_url selects the in-memory backend: dev mode, nothing
	// survives a restart.
	var store storage.Backend
	if cfg.DBUrl == "" {
		log.Warn().Msg("no db_url configured, using in-memory storage")
		store = storage.NewMemoryBackend()
	} else {
		pg, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
		store = pg
	}
	defer store.Close()

	srv := api.NewServer(store, api.Config{
		ListenAddr:      cfg.ListenAddr,
		TLSCertFile:     cfg.TLSCertFile,
		TLSKeyFile:      cfg.TLSKeyFile,
		ProviderURL:     cfg.ProviderURL,
		VerifyTimeout:   time.Duration(cfg.VerifyTimeoutSec) * time.Second,
		AuditBufferSize: cfg.AuditBufferSize,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
	})

	// One-time trusted initialization: seeds the allowlist on a fresh
	// deploy. A no-op (logged, not fatal) once any allowlist exists.
	if len(cfg.BootstrapAllowlist) > 0 {
		err := srv.Admin().Bootstrap(ctx, cfg.BootstrapAllowlist)
		switch {
		case errors.Is(err, admin.ErrAlreadyBootstrapped):
			log.Info().Msg("allowlist already set, bootstrap skipped")
		case err != nil:
			log.Fatal().Err(err).Msg("allowlist bootstrap failed")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
