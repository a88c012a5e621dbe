package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlight/metrics"
	"github.com/tomyedwab/sqlight/transport"
	"github.com/tomyedwab/sqlight/transport/auth"
)

type cmdServe struct {
	global *cmdGlobal

	flagListen        string
	flagJWTSecretPath string
	flagSingleSession bool
}

func (c *cmdServe) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "serve"
	cmd.Short = "Serve the worker over websockets"
	cmd.Long = `Description:
  Serve the worker over websockets

  Clients connect to /worker and exchange JSON messages, one per frame.
  Prometheus metrics are served on /metrics.
`
	cmd.Flags().StringVar(&c.flagListen, "listen", "", "Address to listen on")
	cmd.Flags().StringVar(&c.flagJWTSecretPath, "jwt-secret", "", "Require bearer tokens signed with the key in this file")
	cmd.Flags().BoolVar(&c.flagSingleSession, "single-session", false, "Keep a single session shared by all clients")
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdServe) Run(cmd *cobra.Command, args []string) error {
	cfg := &c.global.config
	if c.flagListen != "" {
		cfg.Listen = c.flagListen
	}
	if c.flagJWTSecretPath != "" {
		cfg.JWTSecretPath = c.flagJWTSecretPath
	}
	if c.flagSingleSession {
		cfg.SingleSession = true
	}
	logger := c.global.logger

	var secret []byte
	if cfg.JWTSecretPath != "" {
		var err error
		if secret, err = auth.LoadSecretKey(cfg.JWTSecretPath); err != nil {
			return err
		}
	}

	h, cleanup, err := c.global.newHost()
	if err != nil {
		return err
	}
	defer cleanup()

	prometheus.MustRegister(metrics.Collectors()...)

	server := &http.Server{
		Addr: cfg.Listen,
		Handler: transport.NewServer(transport.ServerConfig{
			Host:              h,
			JWTSecret:         secret,
			EnableCrossOrigin: cfg.EnableCrossOrigin,
			Logger:            logger,
		}),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Listen, "auth", secret != nil, "single_session", cfg.SingleSession)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
