package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/duo-relay/pkg/auth"
	"github.com/mahaj/duo-relay/pkg/config"
	"github.com/mahaj/duo-relay/pkg/db"
	"github.com/mahaj/duo-relay/pkg/logging"
	"github.com/mahaj/duo-relay/pkg/presence"
	"github.com/sirupsen/logrus"
)

func CORSMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.API
	if err := config.Load(&cfg); err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokens(cfg.TokenSecret, 0)
	if err != nil {
		return err
	}

	session, err := db.NewSession(config.Split(cfg.ScyllaHosts), cfg.Keyspace)
	if err != nil {
		return err
	}
	defer session.Close()

	mirror := presence.NewRedisMirror(cfg.RedisAddr, presence.DefaultKey)
	defer mirror.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(cfg, tokens, db.NewArchive(session), mirror, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("API service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMux(cfg config.API, tokens *auth.Tokens, store HistoryStore, reader presence.Reader, log logrus.FieldLogger) http.Handler {
	mux := http.NewServeMux()
	// Both endpoints want a token minted by the gateway at login.
	mux.Handle("GET /history", tokens.Middleware(log, NewHistoryHandler(store, cfg.HistoryLimit, log)))
	mux.Handle("GET /presence", tokens.Middleware(log, NewPresenceHandler(reader, log)))
	return CORSMiddleware(cfg.AllowedOrigin, mux)
}
