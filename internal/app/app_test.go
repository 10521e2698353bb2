package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pantry/internal/search"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.addr != ":8080" || cfg.collection != "pantry" || cfg.debounce != search.DefaultDelay || cfg.logLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseFlagsValidation(t *testing.T) {
	cases := [][]string{
		{"-collection", ""},
		{"-debounce", "-1s"},
		{"-unknown"},
	}
	for _, args := range cases {
		if _, err := parseFlags(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
	if _, err := parseFlags([]string{"-h"}); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestAddressHonoursPort(t *testing.T) {
	cfg := Config{addr: "127.0.0.1:9000"}
	t.Setenv("PORT", "")
	if cfg.address() != "127.0.0.1:9000" {
		t.Fatalf("unexpected address %s", cfg.address())
	}
	t.Setenv("PORT", "7070")
	if cfg.address() != ":7070" {
		t.Fatalf("expected PORT override, got %s", cfg.address())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError} {
		got, err := parseLevel(in)
		if err != nil || got != want {
			t.Fatalf("parseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestRunVersionAndHelp(t *testing.T) {
	if err := Run(context.Background(), []string{"-version"}, quietLogger()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := Run(context.Background(), []string{"-h"}, quietLogger()); err != nil {
		t.Fatalf("help: %v", err)
	}
	if err := Run(context.Background(), []string{"-log-level", "loud"}, nil); err == nil {
		t.Fatalf("expected bad log level to fail")
	}
}

func TestRunRejectsUnknownDriver(t *testing.T) {
	t.Setenv("PANTRY_STORE_DRIVER", "floppy")
	if err := Run(context.Background(), nil, quietLogger()); err == nil || !strings.Contains(err.Error(), "open store") {
		t.Fatalf("expected open store error, got %v", err)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestRunServesUntilCancelled(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PANTRY_STORE_DRIVER", "sqlite")
	t.Setenv("PANTRY_SQLITE_PATH", filepath.Join(t.TempDir(), "pantry.db"))
	addr := freeAddr(t)
	trace := filepath.Join(t.TempDir(), "trace.jsonl")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{"-addr", addr, "-debounce", "1ms", "-trace-file", trace}, quietLogger())
	}()

	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		resp, err = http.Post("http://"+addr+"/api/items", "application/json", strings.NewReader(`{"name":"rice"}`))
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	var view struct {
		Rows []struct {
			Name     string `json:"name"`
			Quantity int    `json:"quantity"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(view.Rows) != 1 || view.Rows[0].Name != "rice" || view.Rows[0].Quantity != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}

	data, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(data), `"operation":"increment"`) {
		t.Fatalf("expected increment span in trace file, got %s", data)
	}
}
