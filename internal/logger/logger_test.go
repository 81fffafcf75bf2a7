package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/StratForge/internal/config"
)

func TestLoggerAddsContextIDs(t *testing.T) {
	tests := []struct {
		name  string
		ctx   context.Context
		async bool
		want  map[string]string
	}{
		{
			name: "request and run",
			ctx:  WithRunID(WithRequestID(context.Background(), "req-1"), "run-9"),
			want: map[string]string{"request_id": "req-1", "run_id": "run-9", "service": "stratforge-test"},
		},
		{
			name:  "async",
			ctx:   WithRequestID(context.Background(), "req-2"),
			async: true,
			want:  map[string]string{"request_id": "req-2", "service": "stratforge-test"},
		},
		{
			name: "bare context",
			ctx:  context.Background(),
			want: map[string]string{"service": "stratforge-test"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, closer := newLogger(config.Logging{Level: "info", Service: "stratforge-test", Async: tt.async}, &buf)
			l.InfoContext(tt.ctx, "upgrade started", "strategy_id", "s1")
			closer.Close()

			var got map[string]any
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("decode %q: %v", buf.String(), err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %q", k, got[k], v)
				}
			}
			if _, ok := got["run_id"]; ok && tt.want["run_id"] == "" {
				t.Error("unexpected run_id")
			}
		})
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l, _ := newLogger(config.Logging{Level: "warn"}, &buf)
	l.Info("hidden")
	l.Warn("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"verbose", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
