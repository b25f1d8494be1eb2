package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"transformator/client"
	"transformator/config"
	"transformator/loadbalance"
	"transformator/logging"
	"transformator/registry"
	"transformator/rpcerr"
	"transformator/supervisor"
)

type options struct {
	configPath string
	connect    string
	host       string
	port       int
	socket     string
	engine     string
	dataPath   string
	list       bool
	codec      string
	timeout    time.Duration

	standalone   bool
	binary       string
	readyTimeout time.Duration
	registry     []string

	logLevel string
	logJSON  bool
}

func newRootCommand(stdin io.Reader) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "transformator [flags] [input-file]",
		Short: "Run an operation on a transformator service",
		Long: `Reads input from a file (or stdin), sends it to the transformator service with the
chosen engine and prints the result. Strings are printed verbatim, anything else as JSON.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, &opts, args, stdin)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path (YAML)")
	flags.StringVar(&opts.connect, "connect", "", "Connect string: port, host:port or socket path")
	flags.StringVar(&opts.host, "host", "", "Service host (default localhost when --port is set)")
	flags.IntVar(&opts.port, "port", 0, "Service TCP port")
	flags.StringVar(&opts.socket, "socket", "", "Service unix socket path")
	flags.StringVarP(&opts.engine, "engine", "e", "", "Operation to run, e.g. render-template")
	flags.StringVarP(&opts.dataPath, "data", "d", "", "Auxiliary data file (.json, .yaml, .yml, .toml)")
	flags.BoolVar(&opts.list, "list", false, "List the operations the service offers")
	flags.StringVar(&opts.codec, "codec", "", "Wire codec: cbor or json")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Per-call timeout (0 disables)")
	flags.BoolVar(&opts.standalone, "standalone", false, "Launch a local service for this call")
	flags.StringVar(&opts.binary, "binary", "", "Service binary for --standalone")
	flags.DurationVar(&opts.readyTimeout, "ready-timeout", 0, "How long --standalone waits for the service")
	flags.StringSliceVar(&opts.registry, "registry", nil, "etcd endpoints; discover the service instead of connecting")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Log as JSON")

	return rootCmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options, args []string, stdin io.Reader) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd.Flags(), opts, &cfg); err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	defer logger.Sync()

	if !opts.list && opts.engine == "" {
		return rpcerr.Newf(rpcerr.KindConfig, "arguments", "an engine is required (-e/--engine), or use --list")
	}

	data, err := loadData(opts.dataPath)
	if err != nil {
		return err
	}
	var input []byte
	if !opts.list {
		if input, err = readInput(args, stdin); err != nil {
			return err
		}
	}

	c, release, err := openClient(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()
	if opts.list {
		ops, err := c.List(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderOperations(ops))
		return nil
	}

	result, err := c.Call(ctx, opts.engine, input, data)
	if err != nil {
		return err
	}
	return printResult(out, result)
}

// applyFlags lets explicitly set flags override the file and environment.
func applyFlags(fs *pflag.FlagSet, opts *options, cfg *config.Config) error {
	if fs.Changed("codec") {
		cfg.Codec = opts.codec
	}
	if fs.Changed("timeout") {
		cfg.CallTimeout = opts.timeout
	}
	if fs.Changed("binary") {
		cfg.Standalone.Binary = opts.binary
	}
	if fs.Changed("ready-timeout") {
		cfg.Standalone.ReadyTimeout = opts.readyTimeout
	}
	if fs.Changed("registry") {
		cfg.Registry.Endpoints = opts.registry
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if fs.Changed("log-json") {
		cfg.Log.JSON = opts.logJSON
	}

	connect, err := connectString(opts, cfg.Connect)
	if err != nil {
		return err
	}
	cfg.Connect = connect
	return cfg.Validate()
}

// connectString picks the endpoint: --socket, then --host/--port, then --connect, then config.
func connectString(opts *options, fallback string) (string, error) {
	switch {
	case opts.socket != "":
		return opts.socket, nil
	case opts.port != 0:
		host := opts.host
		if host == "" {
			host = "localhost"
		}
		return host + ":" + strconv.Itoa(opts.port), nil
	case opts.host != "":
		return "", rpcerr.Newf(rpcerr.KindConfig, "arguments", "--host needs --port")
	case opts.connect != "":
		return opts.connect, nil
	default:
		return fallback, nil
	}
}

// openClient builds the client for the chosen mode and returns its release function.
func openClient(ctx context.Context, cfg config.Config, opts *options, logger *zap.Logger) (*client.Client, func(), error) {
	clientOpts := []client.Option{
		client.WithLogger(logger),
		client.WithCodec(cfg.CodecType()),
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithCallTimeout(cfg.CallTimeout),
	}
	if cfg.RateLimit.RPS > 0 {
		clientOpts = append(clientOpts, client.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	switch {
	case opts.standalone:
		args, err := supervisor.ParseArgs(cfg.Standalone.Args)
		if err != nil {
			return nil, nil, err
		}
		c, err := client.Standalone(ctx, supervisor.Options{
			BinaryPath:    cfg.Standalone.Binary,
			Args:          args,
			ConnectTarget: cfg.Standalone.Target,
			ReadyTimeout:  cfg.Standalone.ReadyTimeout,
			ReadyMarker:   cfg.Standalone.ReadyMarker,
			GracePeriod:   cfg.Standalone.GracePeriod,
			Logger:        logger.Named("standalone"),
		}, clientOpts...)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Cleanup, nil

	case len(cfg.Registry.Endpoints) > 0:
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, logger)
		if err != nil {
			return nil, nil, rpcerr.New(rpcerr.KindTransport, "connect registry "+strings.Join(cfg.Registry.Endpoints, ","), err)
		}
		bal, err := loadbalance.New(cfg.Registry.Balancer)
		if err != nil {
			reg.Close()
			return nil, nil, rpcerr.New(rpcerr.KindConfig, "balancer", err)
		}
		c := client.NewDiscoveryClient(reg, bal, cfg.Registry.Service, clientOpts...)
		return c, func() { reg.Close() }, nil

	case cfg.Connect != "":
		c, err := client.New(cfg.Connect, clientOpts...)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil

	default:
		return nil, nil, rpcerr.Newf(rpcerr.KindConfig, "arguments",
			"no service: use --connect, --host/--port, --socket, --standalone or --registry")
	}
}
