// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/tool"
)

const lahoreJSON = `{"location":{"name":"Lahore","country":"Pakistan"},"current":{"temp_c":30.0,"condition":{"text":"Sunny"}}}`

func newProvider(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/current.json" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("key") != "secret" || q.Get("aqi") != "no" || q.Get("q") == "" {
			t.Errorf("unexpected query %v", q)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestCurrent(t *testing.T) {
	srv := newProvider(t, http.StatusOK, lahoreJSON, nil)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("secret"))
	report, err := c.Current(context.Background(), "Lahore")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	want := "The weather in Lahore is 30°C and Sunny"
	if got := report.Sentence(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSentenceKeepsFraction(t *testing.T) {
	r := Report{Location: "Karachi", TemperatureC: 31.4, Condition: "Partly cloudy"}
	if got := r.Sentence(); got != "The weather in Karachi is 31.4°C and Partly cloudy" {
		t.Errorf("unexpected sentence %q", got)
	}
}

func TestCurrentFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{}`, want: "404"},
		{name: "provider error", status: http.StatusOK, body: `{"error":{"code":1006,"message":"No matching location found."}}`, want: "No matching location found."},
		{name: "missing location", status: http.StatusOK, body: `{"current":{"temp_c":1,"condition":{"text":"x"}}}`, want: "location.name"},
		{name: "missing temp", status: http.StatusOK, body: `{"location":{"name":"x"},"current":{"condition":{"text":"x"}}}`, want: "temp_c"},
		{name: "missing condition", status: http.StatusOK, body: `{"location":{"name":"x"},"current":{"temp_c":1}}`, want: "condition.text"},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newProvider(t, tt.status, tt.body, nil)
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL), WithAPIKey("secret")).Current(context.Background(), "Nowhere")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestMissingAPIKeyFailsWithoutRequest(t *testing.T) {
	var hits int32
	srv := newProvider(t, http.StatusOK, lahoreJSON, &hits)
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Current(context.Background(), "Lahore")
	if !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	if hits != 0 {
		t.Errorf("expected no request, got %d", hits)
	}
}

func TestRegisteredTool(t *testing.T) {
	var hits int32
	srv := newProvider(t, http.StatusOK, lahoreJSON, &hits)
	defer srv.Close()

	reg := tool.NewRegistry()
	if err := Register(reg, NewClient(WithBaseURL(srv.URL), WithAPIKey("secret"))); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	out, err := reg.Invoke(context.Background(), ToolName, `{"city":"Lahore"}`)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !strings.Contains(out, "Lahore") || !strings.Contains(out, "30") || !strings.Contains(out, "Sunny") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := reg.Invoke(context.Background(), ToolName, `{"town":"Lahore"}`); !errors.Is(err, errors.CodeInvalidToolArguments) {
		t.Fatalf("expected INVALID_TOOL_ARGUMENTS, got %v", err)
	}
	if hits != 1 {
		t.Errorf("expected exactly one provider call, got %d", hits)
	}
}

func TestRegisteredTool404(t *testing.T) {
	srv := newProvider(t, http.StatusNotFound, `{}`, nil)
	defer srv.Close()

	reg := tool.NewRegistry()
	_ = Register(reg, NewClient(WithBaseURL(srv.URL), WithAPIKey("secret")))

	_, err := reg.Invoke(context.Background(), ToolName, `{"city":"Atlantis"}`)
	if !errors.Is(err, errors.CodeToolExecutionFailed) {
		t.Fatalf("expected TOOL_EXECUTION_FAILED, got %v", err)
	}
}

func TestAPIKeyResolvedPerCall(t *testing.T) {
	srv := newProvider(t, http.StatusOK, lahoreJSON, nil)
	defer srv.Close()

	key := ""
	c := NewClient(WithBaseURL(srv.URL), WithAPIKeyFunc(func() string { return key }))
	if _, err := c.Current(context.Background(), "Lahore"); err == nil {
		t.Fatal("expected failure without key")
	}
	key = "secret"
	if _, err := c.Current(context.Background(), "Lahore"); err != nil {
		t.Fatalf("expected success once key is set: %v", err)
	}
}
