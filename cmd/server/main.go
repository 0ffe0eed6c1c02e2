// Command server runs the API as a long-lived HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handler "github.com/projectelevate-biz/tag-sub001/api"
	"github.com/projectelevate-biz/tag-sub001/pkg/config"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadConfig()
	config.ConfigureLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.GetDatabase(ctx, database.DatabaseConfig{
		UseLocalDB:  cfg.UseLocalDB,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}

	app, err := handler.NewApp(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("application init failed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Environment).Bool("local_db", cfg.UseLocalDB).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("app shutdown")
	}
	log.Info().Msg("server stopped")
}
