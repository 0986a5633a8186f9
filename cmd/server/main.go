package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/sarvex/keywhiz/internal/acl"
	"github.com/sarvex/keywhiz/internal/api"
	"github.com/sarvex/keywhiz/internal/crypto"
	"github.com/sarvex/keywhiz/internal/secretcontroller"
	"github.com/sarvex/keywhiz/internal/store/postgres"
)

type config struct {
	ListenAddr    string `yaml:"listen_addr"`
	TLSCertFile   string `yaml:"tls_cert"`
	TLSKeyFile    string `yaml:"tls_key"`
	DBUrl         string `yaml:"db_url"`
	MigrationsDir string `yaml:"migrations_dir"`
	LogLevel      string `yaml:"log_level"`
	RootKeyID     string `yaml:"root_key_id"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("KEYWHIZ_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":4444",
		MigrationsDir: "migrations",
		LogLevel:      "info",
		RootKeyID:     "k1",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	if v := os.Getenv("KEYWHIZ_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("KEYWHIZ_ROOT_KEY_ID"); v != "" {
		cfg.RootKeyID = v
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DBUrl == "" {
		log.Fatal().Msg("db_url must be configured (or DATABASE_URL env var)")
	}

	rootKeyB64 := os.Getenv("KEYWHIZ_ROOT_KEY")
	if rootKeyB64 == "" {
		log.Fatal().Msg("KEYWHIZ_ROOT_KEY must be set to a base64-encoded 32-byte root key (see cmd/keyprovision)")
	}
	rootKey, err := base64.StdEncoding.DecodeString(rootKeyB64)
	if err != nil {
		log.Fatal().Err(err).Msg("KEYWHIZ_ROOT_KEY is not valid base64")
	}
	ring, err := crypto.NewKeyRing(cfg.RootKeyID, rootKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build key ring")
	}
	cryptographer := crypto.New(ring)

	ctx := context.Background()

	store, err := postgres.New(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	if err := postgres.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")

	controller := secretcontroller.New(store, store, store, cryptographer)
	engine := acl.New(store, store, store, store)

	srv := api.NewServer(controller, engine, store, api.Config{
		ListenAddr:  cfg.ListenAddr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
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
