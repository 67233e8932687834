package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sla-monitor/internal/api"
	"sla-monitor/internal/cache"
	"sla-monitor/internal/kafka"
	"sla-monitor/internal/monitor"
	"sla-monitor/internal/notification"
	"sla-monitor/internal/providers"
	"sla-monitor/internal/transport"
)

var _ monitor.AlertSink = (*notification.Service)(nil)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and the local view API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, logger := a.cfg, a.logger

	store, closeStore, err := cache.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Errorf("Cache close failed: %v", err)
		}
	}()

	// One push connection for the whole process.
	header := http.Header{}
	if cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	push := transport.New(transport.Options{
		URL:               cfg.WS.URL,
		Header:            header,
		HandshakeTimeout:  cfg.WS.HandshakeTimeout,
		PingInterval:      cfg.WS.PingInterval,
		ReconnectBase:     cfg.WS.ReconnectBase,
		ReconnectMax:      cfg.WS.ReconnectMax,
		ReconnectAttempts: cfg.WS.ReconnectAttempts,
	}, logger)
	defer push.Disconnect()
	poller := a.poller()

	var wg sync.WaitGroup
	provs, closers := a.providers()
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Errorf("Provider close failed: %v", err)
			}
		}
	}()
	svc := notification.New(logger, notification.Options{
		QueueSize:  cfg.Notification.QueueSize,
		MaxWorkers: cfg.Notification.MaxWorkers,
	}, provs...)
	svc.Start(&wg)

	mon := monitor.New(push, poller, store, monitor.Options{
		CurrentUser:      cfg.Sync.CurrentUser,
		HandshakeTimeout: cfg.WS.HandshakeTimeout,
		PollInterval:     cfg.Sync.PollInterval,
		OwnsTransport:    !cfg.Sync.SharedTransport,
		Sink:             svc,
	}, logger)
	mon.Start(ctx)

	if logger.Logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(mon, poller, api.NewHub(0, logger), logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(handler, logger, cfg.Server.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("API started on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API run failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	handler.Close()
	mon.Stop()
	svc.Stop()
	wg.Wait()
	logger.Infof("Service stopped")
	return nil
}

// providers builds the notification providers that are configured. Each
// one is optional; a failure to build one is logged and skipped.
func (a *app) providers() ([]notification.Provider, []func() error) {
	var provs []notification.Provider
	var closers []func() error

	if a.cfg.Telegram.BotToken != "" {
		tg, err := providers.NewTelegram(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Telegram.RateLimit, a.logger)
		if err != nil {
			a.logger.Errorf("Telegram provider disabled: %v", err)
		} else {
			provs = append(provs, tg)
		}
	}
	if a.cfg.Kafka.Broker != "" {
		host, _ := os.Hostname()
		pub, err := kafka.NewPublisher(kafka.Config{
			Broker: a.cfg.Kafka.Broker,
			Topic:  a.cfg.Kafka.Topic,
			Source: host,
		}, a.logger)
		if err != nil {
			a.logger.Errorf("Kafka provider disabled: %v", err)
		} else {
			provs = append(provs, pub)
			closers = append(closers, pub.Close)
		}
	}
	return provs, closers
}
