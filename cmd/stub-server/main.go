package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/config"
	"github.com/clinicdesk/clinic-booking/internal/stub"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "stub-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("stub-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := stub.NewStore()
	seedPatients(store, seedCount(), log)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: stub.NewServer(store, log).Router(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	log.Info().Msg("shutting down stub-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func seedCount() int {
	if v := os.Getenv("SEED_PATIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 25
}

func seedPatients(store *stub.Store, count int, log zerolog.Logger) {
	gofakeit.Seed(time.Now().UnixNano())
	for i := 0; i < count; i++ {
		store.AddPatient(gofakeit.Name(), gofakeit.Phone())
	}
	log.Info().Int("count", count).Msg("seeded patients")
}
