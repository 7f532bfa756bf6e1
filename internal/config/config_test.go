package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "stackwatch.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestLoad_Minimal(t *testing.T) {
	file := writeConfig(t, `
[backend]
path = "/srv/app/backend"
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Frontend != nil {
		t.Fatalf("expected nil frontend, got %+v", fc.Frontend)
	}
	if fc.Backend == nil || fc.Backend.Path != "/srv/app/backend" {
		t.Fatalf("unexpected backend: %+v", fc.Backend)
	}
}

func TestLoad_Full(t *testing.T) {
	file := writeConfig(t, `
use_os_env = true
env = ["NODE_ENV=development"]

[log]
dir = "/var/log/stackwatch"
max_size_mb = 20

[frontend]
path = "/srv/app/frontend"
command = "npm start"
warmup = "30s"
port = 3000
env = ["PORT=3000"]
grace_period = "5s"
capture_bytes = 32768
  [[frontend.detectors]]
  type = "port"
  port = 3000

[backend]
path = "/srv/app/backend"
warmup = "10s"
port = 5000

[output]
dir = "/srv/app/diagnostics"

[scan]
exts = [".py"]
skip_dirs = ["venv", "node_modules"]
debounce = "500ms"

[advisor]
command = "triage-helper"
timeout = "30s"

[history]
dsn = "sqlite:///var/lib/stackwatch/history.db"

[metrics]
listen = ":9090"

[server]
listen = ":8080"
base_path = "/api"
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f := fc.Frontend
	if f == nil || f.Path != "/srv/app/frontend" || f.Command != "npm start" || f.Port != 3000 {
		t.Fatalf("unexpected frontend: %+v", f)
	}
	if f.Warmup != 30*time.Second || f.GracePeriod != 5*time.Second || f.CaptureBytes != 32768 {
		t.Fatalf("unexpected frontend timing fields: %+v", f)
	}
	if len(f.Detectors) != 1 || f.Detectors[0].Type != "port" || f.Detectors[0].Port != 3000 {
		t.Fatalf("unexpected frontend detectors: %+v", f.Detectors)
	}
	if fc.Backend == nil || fc.Backend.Warmup != 10*time.Second || fc.Backend.Port != 5000 {
		t.Fatalf("unexpected backend: %+v", fc.Backend)
	}
	if fc.Log == nil || fc.Log.Dir != "/var/log/stackwatch" || fc.Log.MaxSizeMB != 20 {
		t.Fatalf("unexpected log config: %+v", fc.Log)
	}
	if fc.Output.Dir != "/srv/app/diagnostics" {
		t.Fatalf("unexpected output: %+v", fc.Output)
	}
	if fc.Scan.Debounce != 500*time.Millisecond || len(fc.Scan.SkipDirs) != 2 {
		t.Fatalf("unexpected scan: %+v", fc.Scan)
	}
	if fc.Advisor.Command != "triage-helper" || fc.Advisor.Timeout != 30*time.Second {
		t.Fatalf("unexpected advisor: %+v", fc.Advisor)
	}
	if fc.History.DSN != "sqlite:///var/lib/stackwatch/history.db" {
		t.Fatalf("unexpected history: %+v", fc.History)
	}
	if fc.Metrics.Listen != ":9090" || fc.Server.Listen != ":8080" || fc.Server.BasePath != "/api" {
		t.Fatalf("unexpected listeners: %+v %+v", fc.Metrics, fc.Server)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"no services", `[output]
dir = "/tmp"`, "neither"},
		{"missing path", `[backend]
warmup = "10s"`, "requires path"},
		{"bad detector type", `[backend]
path = "/tmp"
  [[backend.detectors]]
  type = "pidfile"
  path = "/tmp/x.pid"`, "unknown detector type"},
		{"port detector without port", `[backend]
path = "/tmp"
  [[backend.detectors]]
  type = "port"`, "positive port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := writeConfig(t, tt.data)
			_, err := Load(file)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildDetectors(t *testing.T) {
	dets, err := BuildDetectors([]DetectorEntry{
		{Type: "port", Port: 5000},
		{Type: "pid", PID: os.Getpid()},
		{Type: "command", Command: "true"},
	}, "backend")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(dets) != 3 {
		t.Fatalf("expected 3 detectors, got %d", len(dets))
	}
}

func TestLoadGlobalEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "extra.env")
	if err := os.WriteFile(envFile, []byte("A=file\nB=file\n# comment\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	file := writeConfig(t, `
use_os_env = false
env = ["B=toml"]
env_files = ["`+envFile+`"]

[backend]
path = "/tmp"
`)
	got, err := LoadGlobalEnv(file)
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	sort.Strings(got)
	want := []string{"A=file", "B=toml"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if _, err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestLoadScanWithoutServices(t *testing.T) {
	file := writeConfig(t, `
[scan]
exts = [".py", ".pyi"]
skip_dirs = ["generated"]
debounce = "250ms"
`)
	sc, err := LoadScan(file)
	if err != nil {
		t.Fatalf("load scan: %v", err)
	}
	if len(sc.Exts) != 2 || sc.Exts[1] != ".pyi" {
		t.Fatalf("unexpected exts: %v", sc.Exts)
	}
	if len(sc.SkipDirs) != 1 || sc.SkipDirs[0] != "generated" {
		t.Fatalf("unexpected skip dirs: %v", sc.SkipDirs)
	}
	if sc.Debounce != 250*time.Millisecond {
		t.Fatalf("unexpected debounce: %v", sc.Debounce)
	}
}
