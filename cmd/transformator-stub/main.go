/*
Transformator-stub is a stand-in transformator service. It serves the toy engines from the
server package on the connect target given as its last argument and prints the readiness
marker once bound, so it can be launched with --standalone --binary transformator-stub.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"transformator/config"
	"transformator/logging"
	"transformator/middleware"
	"transformator/registry"
	"transformator/server"
	"transformator/telemetry"
)

var (
	configPath  = pflag.StringP("config", "c", "", "configuration file (YAML)")
	codecName   = pflag.String("codec", "", "wire codec: cbor or json")
	marker      = pflag.String("marker", server.DefaultReadyMarker, "readiness line printed once the listener is bound")
	metricsAddr = pflag.String("metrics-addr", "", "serve prometheus /metrics on this address")
	advertise   = pflag.String("advertise", "", "address to register in etcd (default: the bound endpoint)")
	logLevel    = pflag.String("log-level", "", "log level: debug, info, warn, error")
)

const shutdownTimeout = 5 * time.Second

func main() {
	pflag.Parse()
	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: transformator-stub [flags] <connect-target>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	notNil("could not load config: %s", err)
	if pflag.CommandLine.Changed("codec") {
		cfg.Codec = *codecName
		notNil("invalid codec: %s", cfg.Validate())
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	defer logger.Sync()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCodec(cfg.CodecType()),
		server.WithReadyOutput(os.Stdout, *marker),
	}
	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, logger)
		notNil("could not connect to etcd: %s", err)
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Registry.Service, *advertise, cfg.Registry.TTL))
	}

	svr := server.NewServer(opts...)
	server.RegisterDefaults(svr)
	svr.Use(middleware.LoggingMiddleware(logger))

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := telemetry.NewMetrics("transformator_stub", reg)
		notNil("could not create metrics: %s", err)
		svr.Use(middleware.MetricsMiddleware(m))
		metricsSrv, err := telemetry.Expose(cfg.MetricsAddr, reg)
		notNil("could not serve metrics: %s", err)
		defer metricsSrv.Close()
		logger.Info("serving metrics", zap.String("addr", metricsSrv.Addr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notNil("could not listen: %s", svr.Listen(pflag.Arg(0)))

	served := make(chan error, 1)
	go func() { served <- svr.Serve(ctx) }()

	select {
	case err := <-served:
		notNil("serve failed: %s", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := svr.Shutdown(shutdownTimeout); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
		<-served
	}
}

func notNil(format string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, format+"\n", err)
		os.Exit(1)
	}
}
