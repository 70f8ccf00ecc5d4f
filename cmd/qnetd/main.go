// Copyright (C) 2024-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command qnetd runs the quorum-device arbiter server: it listens for
// qdevice client connections, holds the per-cluster decision-algorithm
// registry, and replies to node-list and ask-for-vote requests.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luxfi/qdevice/cluster"
	"github.com/luxfi/qdevice/config"
	"github.com/luxfi/qdevice/ioloop"
	qlog "github.com/luxfi/qdevice/log"
	"github.com/luxfi/qdevice/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

func main() {
	cmd := rootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qnetd: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qnetd",
		Short: "quorum-device arbiter server",
		RunE:  runQnetd,
	}
	cmd.Flags().BoolP("foreground", "f", false, "run in the foreground instead of daemonizing")
	cmd.Flags().CountP("debug", "d", "increase debug verbosity (repeatable)")
	cmd.Flags().StringP("config", "c", "", "path to an alternate config file")
	return cmd
}

// exitErr carries the exit code spec.md §6 assigns to each failure class.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var e *exitErr
	if as, ok := err.(*exitErr); ok {
		e = as
	}
	if e != nil {
		return e.code
	}
	return 1
}

func runQnetd(cmd *cobra.Command, _ []string) error {
	debugLevel, _ := cmd.Flags().GetCount("debug")
	configPath, _ := cmd.Flags().GetString("config")

	logLevel := "info"
	if debugLevel > 0 {
		logLevel = "debug"
	}
	logger, err := qlog.New(logLevel)
	if err != nil {
		return &exitErr{1, fmt.Errorf("build logger: %w", err)}
	}

	var cfg *config.ServerConfig
	if configPath != "" {
		cfg, err = config.LoadServerFile(configPath)
	} else {
		cfg = config.DefaultServerConfig()
		err = cfg.Validate()
	}
	if err != nil {
		return &exitErr{1, fmt.Errorf("load config: %w", err)}
	}

	reg := prometheus.NewRegistry()
	srvMetrics, err := metrics.NewServerMetrics(reg)
	if err != nil {
		return &exitErr{1, fmt.Errorf("register metrics: %w", err)}
	}

	if cfg.MetricsListenAddress != "" {
		go serveMetrics(cfg.MetricsListenAddress, reg, logger)
	}

	var tlsConfig *tls.Config
	if cfg.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return &exitErr{1, fmt.Errorf("load TLS cert: %w", err)}
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		if cfg.RequireClientCert {
			caPEM, err := os.ReadFile(cfg.TLSClientCACertFile)
			if err != nil {
				return &exitErr{1, fmt.Errorf("load client CA: %w", err)}
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return &exitErr{1, fmt.Errorf("load client CA: no certificates in %s", cfg.TLSClientCACertFile)}
			}
			tlsConfig.ClientCAs = pool
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return &exitErr{1, fmt.Errorf("listen: %w", err)}
	}

	registry := cluster.NewRegistry()
	server := ioloop.NewServer(ioloop.ServerConfig{
		Listener:      ln,
		Registry:      registry,
		TLSConfig:     tlsConfig,
		RequireTLS:    cfg.RequireTLS,
		MaxMessageLen: cfg.MaxMessageLen,
		Metrics:       srvMetrics,
		Log:           logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("qnetd listening", "addr", cfg.ListenAddress, "require_tls", cfg.RequireTLS)
	if err := server.Run(ctx); err != nil {
		return &exitErr{2, fmt.Errorf("server loop: %w", err)}
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger interface {
	Error(string, ...interface{})
}) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "error", err)
	}
}
