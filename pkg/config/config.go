// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Skycast settings from defaults, an optional YAML file,
// the environment and command-line overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/skycast/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. SKYCAST_LLM_MODEL.
const EnvPrefix = "SKYCAST_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Weather    WeatherConfig    `koanf:"weather"`
	Session    SessionConfig    `koanf:"session"`
	Server     ServerConfig     `koanf:"server"`
	Run        RunConfig        `koanf:"run"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai, ollama
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
}

type WeatherConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

type SessionConfig struct {
	Backend  string `koanf:"backend"` // memory, file, sqlite
	Path     string `koanf:"path"`    // empty: skycast.db or ./sessions
	ID       string `koanf:"id"`
	MaxTurns int    `koanf:"max_turns"`
}

type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type RunConfig struct {
	Timeout       time.Duration `koanf:"timeout"`
	RetryAttempts int           `koanf:"retry_attempts"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type GuardrailsConfig struct {
	PromptInjection bool `koanf:"prompt_injection"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":    "openai",
	"llm.model":       "gemini-2.0-flash",
	"llm.base_url":    "https://generativelanguage.googleapis.com/v1beta/openai/",
	"llm.temperature": 0.0,

	"weather.base_url": "http://api.weatherapi.com/v1",
	"weather.timeout":  "15s",

	"session.backend":   "sqlite",
	"session.path":      "",
	"session.id":        "my_first_conversation",
	"session.max_turns": 0,

	"server.addr":            ":8000",
	"server.allowed_origins": []string{"http://localhost:3000", "https://chatbot-ui-henna-rho.vercel.app"},
	"server.request_timeout": "60s",

	"run.timeout":        "60s",
	"run.retry_attempts": 1,

	"telemetry.exporter":      "none",
	"telemetry.otlp_endpoint": "localhost:4317",
	"telemetry.otlp_insecure": true,

	"guardrails.prompt_injection": true,
}

// legacyEnv maps unprefixed variables to config keys.
var legacyEnv = map[string]string{
	"GEMINI_API_KEY":  "llm.api_key",
	"WEATHER_API_KEY": "weather.api_key",
}

// Load reads the configuration. path may be empty. overrides are "key=value"
// pairs applied last, e.g. "llm.model=gemini-2.0-flash".
func Load(path string, overrides ...string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, configError("failed to set default", key, err)
		}
	}

	// 1. File
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, configError("failed to load config file", path, err)
		}
	}

	// 2. Legacy variables, then SKYCAST_LLM_BASE_URL -> llm.base_url
	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			_ = k.Set(key, v)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		_ = k.Set("server.addr", ":"+port)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, configError("failed to load environment", EnvPrefix, err)
	}

	// 3. Overrides
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, configError("override must be key=value", o, nil)
		}
		if err := k.Set(key, value); err != nil {
			return nil, configError("failed to apply override", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, configError("failed to decode configuration", "", err)
	}
	return &cfg, nil
}

// envKey maps SKYCAST_SECTION_SOME_FIELD to section.some_field.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + field
}

// Validate checks the settings needed to start. A missing completion
// credential is a CodeConfiguration error.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if strings.TrimSpace(c.LLM.APIKey) == "" {
			return configError("GEMINI_API_KEY is not set", "llm.api_key", nil)
		}
	case "ollama":
	default:
		return configError(fmt.Sprintf("unknown llm provider %q", c.LLM.Provider), "llm.provider", nil)
	}
	if c.LLM.Model == "" {
		return configError("llm model is required", "llm.model", nil)
	}
	switch c.Session.Backend {
	case "memory", "file", "sqlite":
	default:
		return configError(fmt.Sprintf("unknown session backend %q", c.Session.Backend), "session.backend", nil)
	}
	if c.Session.ID == "" {
		return configError("session id is required", "session.id", nil)
	}
	if c.Run.RetryAttempts < 1 {
		return configError("run.retry_attempts must be at least 1", "run.retry_attempts", nil)
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return configError(fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter), "telemetry.exporter", nil)
	}
	return nil
}

func configError(msg, key string, cause error) *errors.SkycastError {
	e := errors.New(errors.CodeConfiguration, msg, cause)
	if key != "" {
		e = e.WithContext("key", key)
	}
	return e
}
