package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/auth"
	"ojassist/internal/cli/command"
	"ojassist/internal/cli/config"
	"ojassist/internal/cli/display"
	httpclient "ojassist/internal/cli/http"
	"ojassist/internal/cli/repl"
	"ojassist/internal/cli/state"
	"ojassist/internal/cli/submit"
	"ojassist/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override OJ base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	cachePath := flag.String("cache", "", "Override session cache file")
	workDir := flag.String("workdir", "", "Override solution directory")
	language := flag.String("lang", "", "Override submission language")
	logLevel := flag.String("log-level", "", "Override log level")
	insecure := flag.Bool("insecure", false, "Skip TLS certificate verification")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *cachePath != "" {
		cfg.Cache.Path = *cachePath
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *language != "" {
		cfg.Language = *language
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *insecure {
		cfg.InsecureSkipVerify = true
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	ctx = logger.WithTraceID(ctx, uuid.NewString())

	if err := run(ctx, cfg); err != nil {
		logger.Error(ctx, "cli exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	transport, err := httpclient.New(httpclient.Options{
		BaseURL:            cfg.BaseURL,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return err
	}
	client := api.New(transport)

	store, closeStore, err := openStore(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStore()

	var session *repl.Session
	manager := auth.NewManager(client, store, auth.Config{
		AuthorizeURL:  cfg.CASAuthorizeURL,
		SessionCookie: cfg.SessionCookie,
		CSRFCookie:    cfg.CSRFCookie,
	}, func(ctx context.Context) (auth.Credentials, error) {
		return session.Credentials(ctx)
	})

	session = repl.New(repl.Deps{
		Client:   client,
		Auth:     manager,
		Engine:   submit.NewEngine(client, cfg.Poll, submit.Sleep),
		Printer:  display.NewPrinter(os.Stdout),
		Commands: command.Registry(),
		Config:   cfg,
	})
	logger.Info(ctx, "cli started", zap.String("base_url", cfg.BaseURL), zap.String("cache", cfg.Cache.Backend))
	return session.Run(ctx, os.Stdin, os.Stdout)
}

func openStore(cfg config.CacheConfig) (state.Store, func(), error) {
	codec := state.NewCodec(cfg.Passphrase)
	if cfg.Backend == "redis" {
		redisCfg := state.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		if cfg.RedisKey != "" {
			redisCfg.Key = cfg.RedisKey
		}
		store, err := state.NewRedisStore(redisCfg, codec)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis session store failed: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	return state.NewBoltStore(cfg.Path, codec), func() {}, nil
}
