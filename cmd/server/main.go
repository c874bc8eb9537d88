// Package main is the entry point for the reviewd server. It reads
// configuration from the environment (with .env support for local
// development), sets up logging, and starts the server. Everything else
// lives in internal/.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vstrealm/reviewd/internal/auth"
	"github.com/vstrealm/reviewd/internal/server"
)

func main() {
	// .env is a development convenience; in production the variables
	// come from the process environment and the file simply isn't there.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(cfg.DBPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads the server configuration from the environment.
//
// Variables:
//
//	PORT                         listen port (default 8080)
//	DB_PATH                      SQLite file (default data/reviewd.db)
//	JWT_SECRET                   token signing secret, required, min 16 chars
//	JWT_TTL_MINUTES              token lifetime (default 30)
//	GOOGLE_CLIENT_ID             optional, enables Google login
//	GOOGLE_CLIENT_SECRET         paired with GOOGLE_CLIENT_ID
//	GOOGLE_REDIRECT_URL          OAuth callback (default derived from PORT)
//	FRONTEND_LOGIN_REDIRECT_URI  optional browser landing page after OAuth
func loadConfig() (server.Config, error) {
	cfg := server.Config{
		Port:     8080,
		DBPath:   "data/reviewd.db",
		TokenTTL: auth.DefaultTokenTTL,

		JWTSecret:                os.Getenv("JWT_SECRET"),
		GoogleClientID:           os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:       os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:        os.Getenv("GOOGLE_REDIRECT_URL"),
		FrontendLoginRedirectURI: os.Getenv("FRONTEND_LOGIN_REDIRECT_URI"),
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("PORT must be an integer, got %q", v)
		}
		cfg.Port = port
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := os.Getenv("JWT_TTL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return cfg, fmt.Errorf("JWT_TTL_MINUTES must be a positive integer, got %q", v)
		}
		cfg.TokenTTL = time.Duration(minutes) * time.Minute
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required (generate one with: openssl rand -hex 32)")
	}

	if cfg.GoogleClientID != "" && cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port)
	}

	return cfg, nil
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
