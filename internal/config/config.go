package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stackwatch/stackwatch/internal/detector"
	"github.com/stackwatch/stackwatch/internal/logger"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *logger.Config `toml:"log" mapstructure:"log"`
	Frontend *ServiceConfig `toml:"frontend" mapstructure:"frontend"`
	Backend  *ServiceConfig `toml:"backend" mapstructure:"backend"`
	Output   OutputConfig   `toml:"output" mapstructure:"output"`
	Scan     ScanConfig     `toml:"scan" mapstructure:"scan"`
	Advisor  AdvisorConfig  `toml:"advisor" mapstructure:"advisor"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
}

// ServiceConfig describes one supervised service (frontend or backend).
type ServiceConfig struct {
	Path         string          `toml:"path" mapstructure:"path"`
	Command      string          `toml:"command" mapstructure:"command"`
	Warmup       time.Duration   `toml:"warmup" mapstructure:"warmup"`
	Port         int             `toml:"port" mapstructure:"port"`
	Env          []string        `toml:"env" mapstructure:"env"`
	GracePeriod  time.Duration   `toml:"grace_period" mapstructure:"grace_period"`
	CaptureBytes int             `toml:"capture_bytes" mapstructure:"capture_bytes"`
	Detectors    []DetectorEntry `toml:"detectors" mapstructure:"detectors"`
}

type DetectorEntry struct {
	Type    string `toml:"type" mapstructure:"type"`
	Host    string `toml:"host" mapstructure:"host"`
	Port    int    `toml:"port" mapstructure:"port"`
	PID     int    `toml:"pid" mapstructure:"pid"`
	Command string `toml:"command" mapstructure:"command"`
}

type OutputConfig struct {
	Dir string `toml:"dir" mapstructure:"dir"`
}

type ScanConfig struct {
	Exts     []string      `toml:"exts" mapstructure:"exts"`
	SkipDirs []string      `toml:"skip_dirs" mapstructure:"skip_dirs"`
	Debounce time.Duration `toml:"debounce" mapstructure:"debounce"`
}

type AdvisorConfig struct {
	Command string        `toml:"command" mapstructure:"command"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Load parses a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if fc.Frontend == nil && fc.Backend == nil {
		return nil, fmt.Errorf("config %s defines neither [frontend] nor [backend]", path)
	}
	for name, sc := range map[string]*ServiceConfig{"frontend": fc.Frontend, "backend": fc.Backend} {
		if sc == nil {
			continue
		}
		if sc.Path == "" {
			return nil, fmt.Errorf("[%s] requires path", name)
		}
		if _, err := BuildDetectors(sc.Detectors, name); err != nil {
			return nil, err
		}
	}
	return &fc, nil
}

// LoadScan parses only the [scan] section of a config file. Unlike Load it
// does not require any service to be configured.
func LoadScan(path string) (ScanConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return ScanConfig{}, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return ScanConfig{}, err
	}
	return fc.Scan, nil
}

// BuildDetectors converts detector entries to detector implementations.
func BuildDetectors(entries []DetectorEntry, service string) ([]detector.Detector, error) {
	dets := make([]detector.Detector, 0, len(entries))
	for _, d := range entries {
		switch d.Type {
		case "port":
			if d.Port <= 0 {
				return nil, fmt.Errorf("detector port requires positive port for service %s", service)
			}
			dets = append(dets, detector.PortDetector{Host: d.Host, Port: d.Port})
		case "pid":
			if d.PID <= 0 {
				return nil, fmt.Errorf("detector pid requires positive pid for service %s", service)
			}
			dets = append(dets, detector.PIDDetector{PID: d.PID})
		case "command":
			if d.Command == "" {
				return nil, fmt.Errorf("detector command requires command for service %s", service)
			}
			dets = append(dets, detector.CommandDetector{Command: d.Command})
		default:
			return nil, fmt.Errorf("unknown detector type %q for service %s", d.Type, service)
		}
	}
	return dets, nil
}

// LoadGlobalEnv merges env from config: top-level env, env_files contents, and optionally OS env when UseOSEnv is true.
// Precedence: OS env (when enabled) provides base; then apply file vars; then top-level env list overrides last.
func LoadGlobalEnv(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
