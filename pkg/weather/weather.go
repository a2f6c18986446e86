// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package weather queries the weatherapi.com current-conditions endpoint and
// exposes it as the fetch_weather tool.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/telemetry"
	"github.com/jllopis/skycast/pkg/tool"
)

const (
	// DefaultBaseURL is the weatherapi.com v1 API root.
	DefaultBaseURL = "http://api.weatherapi.com/v1"

	// ToolName is the name the model uses to call the lookup.
	ToolName = "fetch_weather"
)

// Report is the subset of current conditions the assistant reports.
type Report struct {
	Location     string
	TemperatureC float64
	Condition    string
}

// Sentence formats the report the way the weather agent quotes it.
func (r Report) Sentence() string {
	temp := strconv.FormatFloat(r.TemperatureC, 'f', -1, 64)
	return fmt.Sprintf("The weather in %s is %s°C and %s", r.Location, temp, r.Condition)
}

// Client fetches current conditions for a city.
type Client struct {
	baseURL    string
	apiKey     func() string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets a fixed API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = func() string { return key } }
}

// WithAPIKeyFunc resolves the API key on every request, so a missing
// credential only fails the lookup that needs it.
func WithAPIKeyFunc(fn func() string) Option {
	return func(c *Client) { c.apiKey = fn }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a weather client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     func() string { return "" },
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type currentResponse struct {
	Location *struct {
		Name *string `json:"name"`
	} `json:"location"`
	Current *struct {
		TempC     *float64 `json:"temp_c"`
		Condition *struct {
			Text *string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Current returns the current conditions for city. It issues exactly one GET.
func (c *Client) Current(ctx context.Context, city string) (Report, error) {
	ctx, span := otel.Tracer("skycast/weather").Start(ctx, "weather.fetch")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrWeatherCity, city))

	report, err := c.current(ctx, city)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weather lookup failed")
	}
	return report, err
}

func (c *Client) current(ctx context.Context, city string) (Report, error) {
	key := c.apiKey()
	if key == "" {
		return Report{}, errors.New(errors.CodeConfiguration, "WEATHER_API_KEY is not set", nil)
	}

	q := url.Values{}
	q.Set("key", key)
	q.Set("q", city)
	q.Set("aqi", "no")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("failed to create weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("weather api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Report{}, fmt.Errorf("failed to fetch weather data: %d", resp.StatusCode)
	}

	var payload currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Report{}, fmt.Errorf("failed to decode weather response: %w", err)
	}
	if payload.Error != nil {
		return Report{}, fmt.Errorf("weather api error: %s", payload.Error.Message)
	}

	switch {
	case payload.Location == nil || payload.Location.Name == nil:
		return Report{}, fmt.Errorf("weather response is missing location.name")
	case payload.Current == nil || payload.Current.TempC == nil:
		return Report{}, fmt.Errorf("weather response is missing current.temp_c")
	case payload.Current.Condition == nil || payload.Current.Condition.Text == nil:
		return Report{}, fmt.Errorf("weather response is missing current.condition.text")
	}

	return Report{
		Location:     *payload.Location.Name,
		TemperatureC: *payload.Current.TempC,
		Condition:    *payload.Current.Condition.Text,
	}, nil
}

// Parameters is the fetch_weather argument schema.
var Parameters = tool.ParameterSchema{
	{Name: "city", Type: tool.TypeString, Description: "Name of the city to look up", Required: true},
}

// Register adds fetch_weather to the registry, backed by c.
func Register(reg *tool.Registry, c *Client) error {
	return reg.Register(ToolName, "Get the current weather for a city.", Parameters,
		func(ctx context.Context, args tool.Args) (string, error) {
			report, err := c.Current(ctx, args.String("city"))
			if err != nil {
				return "", err
			}
			return report.Sentence(), nil
		})
}
