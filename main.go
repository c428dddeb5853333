package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/trendboard/internal/config"
	"github.com/roniherschmann/trendboard/internal/core"
	"github.com/roniherschmann/trendboard/internal/eventlog"
	httpapi "github.com/roniherschmann/trendboard/internal/http"
	"github.com/roniherschmann/trendboard/internal/session"
	"github.com/roniherschmann/trendboard/internal/youtube"
)

func main() {
	// Fast JSON logs by default; pretty if running in a TTY/dev
	if isatty() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	cfg := config.Load()

	var dsnFlag, logDirFlag string
	flag.StringVar(&dsnFlag, "dsn", "", "SQLite DSN for EVENT_BACKEND=sqlite (overrides env DB_DSN)")
	flag.StringVar(&logDirFlag, "logdir", "", "directory for visits.csv and clicks.csv (overrides env LOG_DIR)")
	flag.Parse()
	if dsnFlag != "" {
		cfg.DBDSN = dsnFlag
	}
	if logDirFlag != "" {
		cfg.LogDir = logDirFlag
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	// A missing key is reported on every page instead of stopping the
	// process, so the operator sees the remediation text.
	var cfgErr *config.ConfigError
	if err := cfg.Validate(); errors.As(err, &cfgErr) {
		log.Error().Str("key", cfgErr.Key).Msg(cfgErr.Remediation)
	}

	events, err := openEventLog(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.EventBackend).Msg("open event log")
	}
	defer events.Close()

	sessions := session.NewManager(cfg.SessionSecret, session.Credentials{
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
		PassMin:       cfg.GeneralPassMin,
		PassMax:       cfg.GeneralPassMax,
	})
	if cfg.SessionSecret == "" {
		log.Warn().Msg("SESSION_SECRET not set; sessions will not survive a restart")
	}

	yt := youtube.NewClient(youtube.WithBaseURL(cfg.APIBase))
	svc := core.NewService(cfg, yt, events, sessions)

	// HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpapi.NewRouter(cfg, svc, sessions),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.Port).Strs("regions", cfg.Regions).Str("events", cfg.EventBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("bye")
}

func openEventLog(cfg config.Config) (eventlog.Store, error) {
	switch cfg.EventBackend {
	case "", "csv":
		return eventlog.NewCSV(cfg.LogDir), nil
	case "sqlite":
		db, err := eventlog.OpenSQLite(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown EVENT_BACKEND %q", cfg.EventBackend)
	}
}

func isatty() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
