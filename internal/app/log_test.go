package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestHandler(file, console *bytes.Buffer, opID string) *tabHandler {
	h := &tabHandler{mu: &sync.Mutex{}, file: file, consoleLevel: slog.LevelWarn, opID: opID}
	if console != nil {
		h.console = console
	}
	return h
}

func TestTabHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "file added",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tfile added\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "file ignored",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tfile ignored\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "file added",
			attrs:   []slog.Attr{slog.String("path", "/x/y.txt"), slog.Int("size", 4)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tfile added\tpath=/x/y.txt\tsize=4\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTestHandler(&buf, nil, tt.opID)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestTabHandler_ConsoleLevel(t *testing.T) {
	var file, console bytes.Buffer
	logger := slog.New(newTestHandler(&file, &console, "op-1"))

	logger.Info("file added", "path", "/a")
	logger.Warn("corrupt archive cataloged as opaque file", "path", "/b")

	if n := strings.Count(file.String(), "\n"); n != 2 {
		t.Errorf("file got %d lines, want 2", n)
	}
	if strings.Contains(console.String(), "file added") {
		t.Error("info record mirrored to console")
	}
	if !strings.Contains(console.String(), "WARN\top-1\tcorrupt archive") {
		t.Errorf("warning missing from console: %q", console.String())
	}
}

func TestTabHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf, nil, "op-1")
	h.attrs = []slog.Attr{slog.String("a", "1")}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "vault")}).(*tabHandler)
	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	got := buf.String()
	for _, want := range []string{"a=1", "component=vault", "key=abc"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %s", got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	var console bytes.Buffer

	logger, f, err := newLogger(dir, "test-op", &console)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Error("failed", "error", "boom")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "ERROR\ttest-op\tfailed\terror=boom") {
		t.Errorf("log file = %q", data)
	}
	if console.Len() == 0 {
		t.Error("error not mirrored to console")
	}
}
