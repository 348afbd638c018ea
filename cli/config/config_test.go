package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cite-sa/MobiusCore/adapter/redis"
	"github.com/cite-sa/MobiusCore/adapter/webhook"
	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/transport"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `transport:
  backend: vsock
  read_buffer_size: 4096
  write_buffer_size: 8192
  read_timeout: 30s
  accept_timeout: 1m
  connect_attempts: 3

checkpoint:
  backend: s3
  dataset: clicks_state
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

policy:
  name: buffered
  buffer_batches: 32

adapter:
  type: webhook
  url: https://hooks.example.com/mobius
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

metrics:
  listen: 127.0.0.1:9102

daemon:
  listen: 0.0.0.0:7000
  max_sessions: 8
  worker_id: worker-a
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "transport.backend", cfg.Transport.Backend, "vsock")
	if cfg.Transport.ReadBufferSize != 4096 || cfg.Transport.WriteBufferSize != 8192 {
		t.Errorf("buffer sizes = %d/%d", cfg.Transport.ReadBufferSize, cfg.Transport.WriteBufferSize)
	}
	if cfg.Transport.ReadTimeout.Duration != 30*time.Second || cfg.Transport.AcceptTimeout.Duration != time.Minute {
		t.Errorf("timeouts = %v/%v", cfg.Transport.ReadTimeout, cfg.Transport.AcceptTimeout)
	}

	assertEqual(t, "checkpoint.backend", cfg.Checkpoint.Backend, "s3")
	assertEqual(t, "checkpoint.dataset", cfg.Checkpoint.Dataset, "clicks_state")
	assertEqual(t, "checkpoint.path", cfg.Checkpoint.Path, "my-bucket/prefix")
	assertEqual(t, "checkpoint.region", cfg.Checkpoint.Region, "us-east-1")
	if !cfg.Checkpoint.S3PathStyle {
		t.Error("expected checkpoint.s3_path_style=true")
	}

	assertEqual(t, "policy.name", cfg.Policy.Name, "buffered")
	if cfg.Policy.BufferBatches != 32 {
		t.Errorf("expected buffer_batches=32, got %d", cfg.Policy.BufferBatches)
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.headers", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected retries=3, got %v", cfg.Adapter.Retries)
	}

	assertEqual(t, "metrics.listen", cfg.Metrics.Listen, "127.0.0.1:9102")
	assertEqual(t, "daemon.listen", cfg.Daemon.Listen, "0.0.0.0:7000")
	assertEqual(t, "daemon.worker_id", cfg.Daemon.WorkerID, "worker-a")
	if cfg.Daemon.MaxSessions != 8 {
		t.Errorf("expected max_sessions=8, got %d", cfg.Daemon.MaxSessions)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	for _, content := range []string{"", "   \n  \n", "# comment only\n"} {
		cfg, err := Load(writeTemp(t, content))
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", content, err)
		}
		if cfg.Transport.Backend != "" || cfg.Checkpoint.Backend != "" {
			t.Errorf("Load(%q) = %+v, want zero config", content, cfg)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/mobius.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_STATE_BUCKET", "state-bucket")

	cfg, err := Load(writeTemp(t, "checkpoint:\n  backend: s3\n  path: ${TEST_STATE_BUCKET}/mobius\n  region: ${TEST_UNSET_REGION:-eu-west-1}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "checkpoint.path", cfg.Checkpoint.Path, "state-bucket/mobius")
	assertEqual(t, "checkpoint.region", cfg.Checkpoint.Region, "eu-west-1")
}

func TestLoad_RequiredEnvMissing(t *testing.T) {
	_, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: ${TEST_UNSET_REDIS_URL:?redis url}\n"))
	if err == nil || !strings.Contains(err.Error(), "${TEST_UNSET_REDIS_URL}: redis url") {
		t.Fatalf("Load() error = %v, want missing variable", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{name: "top level", yaml: "bogus_key: should_fail\n", key: "bogus_key"},
		{name: "nested", yaml: "checkpoint:\n  backend: fs\n  unknown_field: bad\n", key: "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %s, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Fatalf("expected retries=*0, got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected retries to be nil, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	_, err := Load(writeTemp(t, "adapter:\n  timeout: not-a-duration\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("expected invalid duration error, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := LoadOptional("")
	if err != nil || cfg == nil {
		t.Fatalf("LoadOptional(\"\") = %v, %v", cfg, err)
	}

	path := writeTemp(t, "policy:\n  name: noop\n")
	t.Setenv(EnvConfigPath, path)
	cfg, err = LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional() error = %v", err)
	}
	assertEqual(t, "policy.name", cfg.Policy.Name, "noop")
}

func TestLogLevel(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "info"}}
	none := func(string) (string, bool) { return "", false }
	env := func(k string) (string, bool) { return "error", k == log.EnvLevel }

	if got := cfg.LogLevel(none); got != "info" {
		t.Errorf("LogLevel() = %q, want info from file", got)
	}
	if got := cfg.LogLevel(env); got != "error" {
		t.Errorf("LogLevel() = %q, want error from env", got)
	}
	if got := (&Config{}).LogLevel(none); got != "" {
		t.Errorf("LogLevel() = %q, want empty", got)
	}
}

func TestTransportConfig(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{
		ReadBufferSize: 1024,
		ReadTimeout:    Duration{5 * time.Second},
	}}
	env := map[string]string{transport.EnvWriteBufferSize: "2048"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	tc, err := cfg.TransportConfig(lookup)
	if err != nil {
		t.Fatalf("TransportConfig() error = %v", err)
	}
	if tc.Backend != transport.BackendTCP || tc.ReadBufferSize != 1024 || tc.WriteBufferSize != 2048 || tc.ReadTimeout != 5*time.Second {
		t.Errorf("TransportConfig() = %+v", tc)
	}

	env[transport.EnvSocketType] = "vsock"
	if tc, _ = cfg.TransportConfig(lookup); tc.Backend != transport.BackendVsock {
		t.Errorf("env backend = %q, want vsock", tc.Backend)
	}

	bad := &Config{Transport: TransportConfig{Backend: "pigeon"}}
	if _, err := bad.TransportConfig(lookup); err == nil {
		t.Error("unknown backend error = nil")
	}
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  PolicyConfig
		want    string
		wantErr bool
	}{
		{name: "default strict", want: "*policy.StrictPolicy"},
		{name: "buffered", policy: PolicyConfig{Name: "buffered", BufferBatches: 4}, want: "*policy.BufferedPolicy"},
		{name: "noop", policy: PolicyConfig{Name: "NOOP"}, want: "*policy.NoopPolicy"},
		{name: "buffered negative", policy: PolicyConfig{Name: "buffered", BufferBatches: -1}, wantErr: true},
		{name: "unknown", policy: PolicyConfig{Name: "eventual"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Policy: tt.policy}
			p, err := cfg.NewPolicy(policy.NewStubSink(), log.Nop())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPolicy() error = %v", err)
			}
			if got := fmt.Sprintf("%T", p); got != tt.want {
				t.Errorf("policy = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOpenCheckpoints(t *testing.T) {
	cfg := &Config{}
	p, err := cfg.OpenCheckpoints(t.Context(), nil, log.Nop())
	if err != nil || p != nil {
		t.Fatalf("unconfigured OpenCheckpoints() = %v, %v", p, err)
	}

	cfg.Checkpoint = CheckpointConfig{Backend: "fs", Path: t.TempDir()}
	p, err = cfg.OpenCheckpoints(t.Context(), nil, log.Nop())
	if err != nil {
		t.Fatalf("OpenCheckpoints() error = %v", err)
	}
	cp := &policy.Checkpoint{Stream: "s", Partition: 0, Batch: 1, LogicalTime: 1000}
	if err := p.Ingest(t.Context(), cp); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ds, err := checkpoint.OpenDataset(t.Context(), checkpoint.Options{Backend: checkpoint.BackendFS, Path: cfg.Checkpoint.Path})
	if err != nil {
		t.Fatalf("OpenDataset() error = %v", err)
	}
	got, err := checkpoint.QueryLatest(t.Context(), ds, "s")
	if err != nil {
		t.Fatalf("QueryLatest() error = %v", err)
	}
	if len(got) != 1 || got[0].Batch != 1 {
		t.Errorf("QueryLatest() = %+v", got)
	}

	cfg.Checkpoint = CheckpointConfig{Backend: "fs"}
	if _, err := cfg.OpenCheckpoints(t.Context(), nil, log.Nop()); err == nil {
		t.Error("fs without path error = nil")
	}
}

func TestNewAdapter(t *testing.T) {
	retries := 2
	tests := []struct {
		name    string
		adapter AdapterConfig
		check   func(t *testing.T, a any)
		wantErr bool
	}{
		{name: "none", check: func(t *testing.T, a any) {
			if a != nil {
				t.Errorf("adapter = %T, want nil", a)
			}
		}},
		{name: "webhook", adapter: AdapterConfig{Type: "webhook", URL: "https://example.com/hook", Retries: &retries}, check: func(t *testing.T, a any) {
			if _, ok := a.(*webhook.Adapter); !ok {
				t.Errorf("adapter = %T", a)
			}
		}},
		{name: "redis", adapter: AdapterConfig{Type: "redis", URL: "redis://127.0.0.1:6379/0", Channel: "events"}, check: func(t *testing.T, a any) {
			r, ok := a.(*redis.Adapter)
			if !ok {
				t.Fatalf("adapter = %T", a)
			}
			if r.Channel() != "events" {
				t.Errorf("channel = %q", r.Channel())
			}
		}},
		{name: "webhook without url", adapter: AdapterConfig{Type: "webhook"}, wantErr: true},
		{name: "unknown", adapter: AdapterConfig{Type: "kafka"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Adapter: tt.adapter}
			a, err := cfg.NewAdapter()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAdapter() error = %v", err)
			}
			if a == nil {
				tt.check(t, nil)
				return
			}
			t.Cleanup(func() { _ = a.Close() })
			tt.check(t, a)
		})
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mobius.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
