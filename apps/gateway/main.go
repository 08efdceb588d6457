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
	"github.com/mahaj/duo-relay/pkg/journal"
	"github.com/mahaj/duo-relay/pkg/logging"
	"github.com/mahaj/duo-relay/pkg/presence"
	"github.com/mahaj/duo-relay/pkg/push"
	"github.com/mahaj/duo-relay/pkg/relay"
	"github.com/mahaj/duo-relay/pkg/snowflake"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Gateway
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

	node, err := snowflake.NewNode(int64(cfg.NodeID))
	if err != nil {
		return err
	}
	bridge := push.NewBridge(nil, log)
	opts := []relay.Option{relay.WithLogger(log), relay.WithIDGenerator(node)}

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		log.Warn("VAPID keys not set, push notifications disabled")
	} else {
		sender, err := push.NewVAPIDSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, cfg.PushTTL, nil)
		if err != nil {
			return err
		}
		bridge = push.NewBridge(sender, log)
		opts = append(opts, relay.WithNotifier(bridge))
	}

	if cfg.TokenSecret != "" {
		tokens, err := auth.NewTokens(cfg.TokenSecret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		opts = append(opts, relay.WithTokenIssuer(tokens))
	}

	var mirror presence.Mirror = presence.Noop{}
	if cfg.RedisAddr != "" {
		rm := presence.NewRedisMirror(cfg.RedisAddr, presence.DefaultKey)
		if err := rm.Ping(ctx); err != nil {
			log.WithError(err).Warn("Redis unreachable, presence writes fail until it recovers")
		}
		mirror = rm
	}
	defer mirror.Close()

	var pub journal.Publisher = journal.Noop{}
	if brokers := config.Split(cfg.KafkaBrokers); len(brokers) > 0 {
		pub = journal.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		log.WithFields(logrus.Fields{"brokers": brokers, "topic": cfg.KafkaTopic}).Info("Journal enabled")
	}
	defer pub.Close()

	engine := relay.New(relay.NewState(log), opts...)
	hub := NewHub(engine, mirror, pub, log)
	go hub.Run(ctx)

	limits := Limits{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: int64(cfg.MaxMessageSize),
		BufferSize:     cfg.ConnectionBufferSize,
		AllowedOrigin:  cfg.AllowedOrigin,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(hub, bridge, cfg.VAPIDPublicKey, limits, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("Gateway service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMux(hub *Hub, bridge *push.Bridge, vapidPublicKey string, limits Limits, log logrus.FieldLogger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", serveWs(hub, limits, log))
	mux.Handle("GET /api/vapid-public-key", vapidKeyHandler(vapidPublicKey))
	mux.Handle("POST /api/push-subscription", subscriptionHandler(bridge, log))
	mux.Handle("GET /healthz", healthHandler(hub))
	return withCORS(limits.AllowedOrigin, mux)
}
