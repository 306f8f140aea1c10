package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/subsync/internal/shared"
	tu "github.com/desertthunder/subsync/internal/testing"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output == nil {
				t.Error("expected default output to be set")
			}
			if runner.httpClient == nil {
				t.Error("expected default http client to be set")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := map[string]bool{"setup": false, "serve": false, "worker": false, "sync": false, "dlq": false}
		for _, cmd := range commands {
			if _, ok := want[cmd.Name]; ok {
				want[cmd.Name] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("command %q not registered", name)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("compact", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"a": 1}, false); err != nil {
				t.Fatalf("writeJSON() error = %v", err)
			}
			if got := output.String(); got != "{\"a\":1}\n" {
				t.Errorf("writeJSON() wrote %q", got)
			}
		})

		t.Run("pretty", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"a": 1}, true); err != nil {
				t.Fatalf("writeJSON() error = %v", err)
			}
			if !strings.Contains(output.String(), "\n") {
				t.Error("pretty output has no newlines")
			}
		})

		t.Run("write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writeJSON(map[string]int{"a": 1}, false); err == nil {
				t.Error("writeJSON() ignored a write failure")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("writePlain() error = %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("writePlain() wrote %q", output.String())
		}
	})
}

func TestReloadConfig(t *testing.T) {
	runner := NewRunner(RunnerOpts{})
	original := runner.config

	// a missing path keeps the current config
	runner.reloadConfig("/nonexistent/config.toml")
	if runner.config != original {
		t.Error("reloadConfig() replaced the config for a missing file")
	}
}
