// Copyright (C) 2024-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command qdevice runs the quorum-device arbiter client: it tracks
// local cluster-map and vote-quorum state, forwards node-list events to
// a qnetd server, and installs the server's decided vote locally.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/luxfi/qdevice/client"
	"github.com/luxfi/qdevice/cmap"
	"github.com/luxfi/qdevice/config"
	"github.com/luxfi/qdevice/ioloop"
	qlog "github.com/luxfi/qdevice/log"
	"github.com/luxfi/qdevice/metrics"
	"github.com/luxfi/qdevice/timer"
	"github.com/luxfi/qdevice/votequorum"
)

func main() {
	cmd := rootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qdevice: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qdevice",
		Short: "quorum-device arbiter client",
		RunE:  runQdevice,
	}
	cmd.Flags().BoolP("foreground", "f", false, "run in the foreground instead of daemonizing")
	cmd.Flags().CountP("debug", "d", "increase debug verbosity (repeatable)")
	cmd.Flags().StringP("config", "c", "", "path to an alternate config file")
	return cmd
}

type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if e, ok := err.(*exitErr); ok {
		return e.code
	}
	return 1
}

func runQdevice(cmd *cobra.Command, _ []string) error {
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

	var cfg *config.ClientConfig
	if configPath != "" {
		cfg, err = config.LoadClientFile(configPath)
	} else {
		cfg = config.DefaultClientConfig()
		err = cfg.Validate()
	}
	if err != nil {
		return &exitErr{1, fmt.Errorf("load config: %w", err)}
	}

	reg := prometheus.NewRegistry()
	cliMetrics := metrics.NewClientMetrics(reg)
	if cfg.MetricsListenAddress != "" {
		go serveMetrics(cfg.MetricsListenAddress, reg, logger)
	}

	var tlsConfig *tls.Config
	if cfg.UseTLS {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return &exitErr{1, fmt.Errorf("load TLS cert: %w", err)}
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	cmapAdaptor := cmap.NewMemAdaptor()
	vqAdaptor := votequorum.NewMemAdaptor()

	id := cfg.NodeID
	var nodeIDPtr *uint32
	if id != 0 {
		nodeIDPtr = &id
	}
	cmapAdaptor.BeginReload()
	cmapAdaptor.SetNodes([]cmap.NodeEntry{{NodeID: nodeIDPtr, Ring0Addr: cfg.Ring0Addr}})
	cmapAdaptor.EndReload()

	loop := ioloop.NewClientLoop(ioloop.ClientConfig{
		ServerAddress:    cfg.ServerAddress,
		TLSConfig:        tlsConfig,
		MaxMessageLen:    cfg.MaxMessageLen,
		ReconnectBackoff: cfg.ReconnectBackoff,
		Metrics:          cliMetrics,
		Log:              logger,
		NewClient: func(timers *timer.List) *client.Client {
			c := client.New(client.Config{
				ClusterName:           cfg.ClusterName,
				NodeID:                cfg.NodeID,
				DecisionAlgorithm:     cfg.DecisionAlgorithm,
				HeartbeatMillis:       uint32(cfg.HeartbeatInterval.Milliseconds()),
				UseTLS:                cfg.UseTLS,
				CastVoteTimerInterval: cfg.CastVoteTimerInterval,
			}, timers, logger)
			c.VQ = vqAdaptor
			c.OnHeartbeatTimeout = func() {
				cliMetrics.HeartbeatsMissed.Inc()
			}
			cmapAdaptor.Subscribe(c)
			vqAdaptor.Subscribe(c)
			return c
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("qdevice connecting", "server", cfg.ServerAddress, "cluster", cfg.ClusterName)
	if err := loop.Run(ctx); err != nil {
		return &exitErr{2, fmt.Errorf("client loop: %w", err)}
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
