package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/padsync/internal/logging"
)

// install makes a buffered logger the process default for the test.
func install(t *testing.T, opts logging.Options) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	opts.Output = &buf
	logging.SetDefault(logging.New(opts))
	t.Cleanup(func() { logging.SetDefault(logging.New(logging.DefaultOptions())) })
	return &buf
}

func TestNewFormats(t *testing.T) {
	tests := map[string]struct {
		opts  logging.Options
		check func(t *testing.T, out []byte)
	}{
		"text": {
			opts: logging.Options{Level: logging.LevelInfo},
			check: func(t *testing.T, out []byte) {
				if !strings.Contains(string(out), `msg="sync finished"`) || !strings.Contains(string(out), "profile=p1") {
					t.Errorf("text record = %s", out)
				}
			},
		},
		"json": {
			opts: logging.Options{Level: logging.LevelInfo, JSON: true},
			check: func(t *testing.T, out []byte) {
				var rec map[string]any
				if err := json.Unmarshal(out, &rec); err != nil {
					t.Fatalf("not JSON: %v (%s)", err, out)
				}
				if rec["msg"] != "sync finished" || rec["profile"] != "p1" {
					t.Errorf("json record = %v", rec)
				}
			},
		},
		"source": {
			opts: logging.Options{Level: logging.LevelInfo, AddSource: true},
			check: func(t *testing.T, out []byte) {
				if !strings.Contains(string(out), "source=") {
					t.Errorf("record has no source: %s", out)
				}
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			logging.New(tt.opts).Info("sync finished", logging.Profile("p1"))
			tt.check(t, buf.Bytes())
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := install(t, logging.Options{Level: logging.LevelWarn})

	logging.Debug("merging store")
	logging.Info("sync finished")
	logging.Warn("remote token expires soon")
	logging.Error("sync failed")

	out := buf.String()
	for _, hidden := range []string{"merging store", "sync finished"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%q should be filtered at warn level", hidden)
		}
	}
	for _, shown := range []string{"remote token expires soon", "sync failed"} {
		if !strings.Contains(out, shown) {
			t.Errorf("%q missing at warn level", shown)
		}
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := logging.DefaultOptions()
	if opts.Level != logging.LevelInfo || opts.JSON || opts.AddSource || opts.File != nil {
		t.Errorf("DefaultOptions() = %+v", opts)
	}
	if opts.Output != os.Stderr {
		t.Error("default output should be stderr")
	}
	if logging.New(logging.Options{}) == nil {
		t.Error("New with zero options should still build a logger")
	}
}

func TestSetDefaultReplacesDefault(t *testing.T) {
	buf := install(t, logging.Options{Level: logging.LevelInfo})
	if logging.Default() != logging.Default() {
		t.Error("Default() should be stable between calls")
	}
	slog.Info("through slog")
	if !strings.Contains(buf.String(), "through slog") {
		t.Error("SetDefault should also install the slog default")
	}
}

func TestWith(t *testing.T) {
	buf := install(t, logging.Options{Level: logging.LevelInfo})
	logging.With(logging.Store("padConfigurations")).Info("merged")
	if !strings.Contains(buf.String(), "store=padConfigurations") {
		t.Errorf("With() lost attributes: %s", buf.String())
	}
}

func TestContextLogger(t *testing.T) {
	fallback := install(t, logging.Options{Level: logging.LevelInfo})

	if logging.FromContext(context.Background()) != nil {
		t.Error("empty context should carry no logger")
	}
	logging.WithContext(context.Background()).Info("uses default")
	if !strings.Contains(fallback.String(), "uses default") {
		t.Error("WithContext should fall back to the default logger")
	}

	var own bytes.Buffer
	ctx := logging.NewContext(context.Background(), logging.New(logging.Options{Output: &own}))
	logging.WithContext(ctx).Info("uses context")
	if !strings.Contains(own.String(), "uses context") {
		t.Error("WithContext should prefer the context logger")
	}
	if strings.Contains(fallback.String(), "uses context") {
		t.Error("context logger output leaked to the default logger")
	}
}

func TestAttributeHelpers(t *testing.T) {
	tests := map[string]struct {
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		"profile":   {attr: logging.Profile("3f2a"), wantKey: "profile", wantVal: "3f2a"},
		"store":     {attr: logging.Store("pageMetadata"), wantKey: "store", wantVal: "pageMetadata"},
		"key":       {attr: logging.Key("0:1"), wantKey: "key", wantVal: "0:1"},
		"trigger":   {attr: logging.Trigger("periodic"), wantKey: "trigger", wantVal: "periodic"},
		"state":     {attr: logging.State("conflict"), wantKey: "state", wantVal: "conflict"},
		"path":      {attr: logging.Path("/tmp/show.padsync.json"), wantKey: "path", wantVal: "/tmp/show.padsync.json"},
		"operation": {attr: logging.Operation("upload"), wantKey: "operation", wantVal: "upload"},
		"count":     {attr: logging.Count(42), wantKey: "count", wantVal: "42"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if got := tt.attr.Value.String(); got != tt.wantVal {
				t.Errorf("value = %q, want %q", got, tt.wantVal)
			}
		})
	}
}

func TestErr(t *testing.T) {
	if attr := logging.Err(nil); attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty", attr.Key)
	}

	var buf bytes.Buffer
	logging.New(logging.Options{Output: &buf, JSON: true}).Warn("upload failed", logging.Err(errors.New("quota exceeded")))
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["error"] != "quota exceeded" {
		t.Errorf("error field = %v", rec["error"])
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "padsync.log")
	logger := logging.New(logging.Options{
		Level:  logging.LevelInfo,
		Output: os.Stdout,
		File:   &logging.FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	})
	logger.Info("backup created", logging.Profile("p1"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "backup created") {
		t.Errorf("log file = %s", data)
	}
}

func TestTimer(t *testing.T) {
	buf := install(t, logging.Options{Level: logging.LevelDebug})

	logging.Timer("download")()

	out := buf.String()
	if !strings.Contains(out, "operation=download") || !strings.Contains(out, "duration=") {
		t.Errorf("timer record = %s", out)
	}
}
