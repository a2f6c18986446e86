// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Command skycast runs the guarded weather assistant as an interactive chat
// or as an HTTP service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jllopis/skycast/pkg/agent"
	"github.com/jllopis/skycast/pkg/assistant"
	"github.com/jllopis/skycast/pkg/config"
	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/llm"
	"github.com/jllopis/skycast/pkg/resilience"
	"github.com/jllopis/skycast/pkg/runtime"
	"github.com/jllopis/skycast/pkg/session"
	"github.com/jllopis/skycast/pkg/telemetry"
	"github.com/jllopis/skycast/pkg/weather"
	"github.com/jllopis/skycast/providers/openai"
)

const (
	serviceName = "skycast"
	version     = "v0.1.0"
)

type globalFlags struct {
	ConfigPath string
	Overrides  []string
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(NewInvalidArgumentError("flags", err.Error()))
	}
	if flags.Help {
		printUsage()
		return
	}
	cmd := "chat"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "help":
		printUsage()
		return
	case "version":
		fmt.Println(version)
		return
	case "chat", "serve":
	default:
		fatal(NewInvalidArgumentError("command", fmt.Sprintf("unknown command %q", cmd)))
	}

	// A missing .env is fine; the environment may already carry the keys.
	_ = godotenv.Load()

	cfg, err := config.Load(flags.ConfigPath, flags.Overrides...)
	if err != nil {
		fatal(NewConfigError(err, flags.ConfigPath))
	}
	if err := cfg.Validate(); err != nil {
		fatal(NewConfigError(err, flags.ConfigPath))
	}

	a, err := setup(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	switch cmd {
	case "chat":
		err = runChat(ctx, a, args)
	case "serve":
		err = runServe(ctx, a, args)
	}
	if err != nil {
		a.close()
		fatal(err)
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--set":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --set")
			}
			flags.Overrides = append(flags.Overrides, args[i+1])
			i++
		case strings.HasPrefix(arg, "--set="):
			flags.Overrides = append(flags.Overrides, strings.TrimPrefix(arg, "--set="))
		default:
			return flags, nil, fmt.Errorf("unknown flag %q", arg)
		}
	}
	return flags, nil, nil
}

// app holds the wired components shared by both commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *runtime.Orchestrator
	store        session.Store
	shutdown     telemetry.ShutdownFunc
	closed       bool
}

func setup(cfg *config.Config) (*app, error) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format, serviceName)

	shutdown, err := telemetry.Init(serviceName, version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to init telemetry", err)
	}
	metrics, err := telemetry.NewRunMetrics()
	if err != nil {
		logger.Warn("telemetry.metrics.disabled", slog.String("error", err.Error()))
		metrics = nil
	}

	provider, err := createProvider(cfg)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	// An empty weather key only fails the lookups that need it.
	client := weather.NewClient(
		weather.WithBaseURL(cfg.Weather.BaseURL),
		weather.WithTimeout(cfg.Weather.Timeout),
		weather.WithAPIKey(cfg.Weather.APIKey),
	)
	tools, err := assistant.Tools(client, metrics)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	entry, err := assistant.Agents(provider, assistant.Options{
		Temperature:     cfg.LLM.Temperature,
		PromptInjection: cfg.Guardrails.PromptInjection,
	})
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	store, err := session.Open(cfg.Session.Backend, cfg.Session.Path)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	runner := agent.NewRunner(provider, tools,
		agent.WithDefaultModel(cfg.LLM.Model),
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
	)
	orchestrator, err := runtime.New(runner, entry, store,
		runtime.WithWindow(session.WindowStrategy{MaxTurns: cfg.Session.MaxTurns}),
		runtime.WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(cfg.Run.RetryAttempts)),
		runtime.WithTimeout(cfg.Run.Timeout),
		runtime.WithLogger(logger),
	)
	if err != nil {
		_ = session.Close(store)
		_ = shutdown(context.Background())
		return nil, err
	}

	logger.Debug("skycast.ready",
		slog.String("llm.provider", cfg.LLM.Provider),
		slog.String("llm.model", cfg.LLM.Model),
		slog.String("session.backend", cfg.Session.Backend),
	)
	return &app{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		store:        store,
		shutdown:     shutdown,
	}, nil
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := session.Close(a.store); err != nil {
		a.logger.Warn("session.close.failed", slog.String("error", err.Error()))
	}
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("telemetry.shutdown.failed", slog.String("error", err.Error()))
	}
}

func createProvider(cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		return openai.New(
			openai.WithAPIKey(cfg.LLM.APIKey),
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithModel(cfg.LLM.Model),
		), nil
	case "ollama":
		baseURL := cfg.LLM.BaseURL
		if baseURL == "" || baseURL == openai.DefaultBaseURL {
			baseURL = "http://localhost:11434"
		}
		return llm.NewOllama(baseURL), nil
	default:
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown LLM provider: %s", cfg.LLM.Provider), nil)
	}
}

func printUsage() {
	fmt.Println(`Skycast weather assistant

Usage:
  skycast [global flags] [command] [args]

Global flags:
  --config <path>      YAML configuration file
  --set key=value      Override config (repeatable)

Commands:
  chat [--session <id>]   Interactive chat (default)
  serve [--addr <addr>]   HTTP service: POST /chat, GET /healthz
  version
  help

Environment:
  GEMINI_API_KEY       Completion provider key (required for llm.provider=openai)
  WEATHER_API_KEY      weatherapi.com key
  PORT                 Listen port for serve
  SKYCAST_<SECTION>_<KEY>  Any config key, e.g. SKYCAST_LLM_MODEL`)
}

func fatal(err error) {
	if ce, ok := err.(*CLIError); ok {
		ce.PrintError()
	} else {
		PrintSimpleError(err)
	}
	os.Exit(1)
}
