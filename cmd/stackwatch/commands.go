package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackwatch/stackwatch/internal/advisor"
	cfg "github.com/stackwatch/stackwatch/internal/config"
	"github.com/stackwatch/stackwatch/internal/coordinator"
	"github.com/stackwatch/stackwatch/internal/detector"
	"github.com/stackwatch/stackwatch/internal/env"
	"github.com/stackwatch/stackwatch/internal/history/factory"
	"github.com/stackwatch/stackwatch/internal/logger"
	"github.com/stackwatch/stackwatch/internal/metrics"
	"github.com/stackwatch/stackwatch/internal/process"
	"github.com/stackwatch/stackwatch/internal/report"
	"github.com/stackwatch/stackwatch/internal/scanner"
	"github.com/stackwatch/stackwatch/internal/server"
	"github.com/stackwatch/stackwatch/internal/supervisor"

	"github.com/prometheus/client_golang/prometheus"
)

func createRunCommand(f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the dev stack, diagnose failures, and stay resident",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStack(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.ConfigPath, "config", "", "path to TOML config file (optional)")
	fl.StringVar(&f.FrontendPath, "frontend", "", "frontend project directory")
	fl.StringVar(&f.BackendPath, "backend", "", "backend project directory")
	fl.StringVar(&f.OutputDir, "output", "", "directory for diagnostics reports")
	fl.StringVar(&f.AdvisorCmd, "advisor", "", "external triage command consulted per finding")
	fl.DurationVar(&f.AdvisorTimeout, "advisor-timeout", advisor.DefaultTimeout, "per-finding advisor timeout")
	fl.StringVar(&f.HistoryDSN, "history", "", "history sink DSN (sqlite://..., postgres://..., clickhouse://...)")
	fl.StringVar(&f.MetricsListen, "metrics-listen", "", "address for the prometheus /metrics listener")
	fl.StringVar(&f.Listen, "listen", "", "address for the status API listener")
	fl.StringVar(&f.BasePath, "base-path", "", "base path for the status API")
	fl.StringVar(&f.LogDir, "log-dir", "", "directory for the rotated run log")
	fl.BoolVar(&f.Once, "once", false, "diagnose once and exit instead of staying resident")
	fl.BoolVar(&f.Verbose, "verbose", false, "debug logging")
	return cmd
}

func runStack(cmd *cobra.Command, f *RunFlags) error {
	var fileCfg *cfg.FileConfig
	if f.ConfigPath != "" {
		var err error
		fileCfg, err = cfg.Load(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	setupLogging(f, fileCfg)

	sups, err := buildSupervisors(f, fileCfg)
	if err != nil {
		return err
	}

	opts := []coordinator.Option{
		coordinator.WithReportWriter(report.Writer{Dir: outputDir(f, fileCfg)}),
	}
	if a := buildAdvisor(f, fileCfg); a != nil {
		opts = append(opts, coordinator.WithAdvisor(a))
	}
	if dsn := firstNonEmpty(f.HistoryDSN, cfgHistoryDSN(fileCfg)); dsn != "" {
		sink, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		opts = append(opts, coordinator.WithHistorySink(sink))
	}

	coord, err := coordinator.New(sups, opts...)
	if err != nil {
		return err
	}

	if addr := firstNonEmpty(f.MetricsListen, cfgMetricsListen(fileCfg)); addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics listener failed", "addr", addr, "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := coord.Run(ctx)
	if err != nil {
		coord.Shutdown()
		return err
	}
	cmd.Print(rep.Summary())

	var router *server.Router
	if addr := firstNonEmpty(f.Listen, cfgServerListen(fileCfg)); addr != "" {
		router = server.NewRouter(coord, firstNonEmpty(f.BasePath, cfgServerBasePath(fileCfg)))
		router.SetReport(rep)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("status API listener failed", "addr", addr, "err", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	if !coord.AnySpawned() {
		coord.Shutdown()
		return errNoServiceSpawned
	}

	if f.Once {
		coord.Shutdown()
		return nil
	}

	slog.Info("staying resident, interrupt to stop")
	coord.Supervise(ctx)
	return nil
}

func setupLogging(f *RunFlags, fileCfg *cfg.FileConfig) {
	level := slog.LevelInfo
	if f.Verbose {
		level = slog.LevelDebug
	}
	logCfg := logger.Config{Dir: f.LogDir}
	if fileCfg != nil && fileCfg.Log != nil {
		logCfg = *fileCfg.Log
		if f.LogDir != "" {
			logCfg.Dir = f.LogDir
		}
	}
	w, err := logCfg.Writer("stackwatch_" + time.Now().Format(report.FilenameLayout) + ".log")
	if err != nil {
		logger.Setup(level, nil)
		slog.Warn("run log unavailable", "err", err)
		return
	}
	if w != nil {
		logger.Setup(level, w)
		return
	}
	logger.Setup(level, nil)
}

// buildSupervisors assembles the service supervisors in launch order:
// backend first, then frontend.
func buildSupervisors(f *RunFlags, fileCfg *cfg.FileConfig) ([]*supervisor.Supervisor, error) {
	var globalEnv []string
	if f.ConfigPath != "" {
		var err error
		globalEnv, err = cfg.LoadGlobalEnv(f.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load env: %w", err)
		}
	}

	var sups []*supervisor.Supervisor
	if s, err := buildService(scanner.SourceBackend, f.BackendPath, fileCfg, globalEnv); err != nil {
		return nil, err
	} else if s != nil {
		sups = append(sups, s)
	}
	if s, err := buildService(scanner.SourceFrontend, f.FrontendPath, fileCfg, globalEnv); err != nil {
		return nil, err
	} else if s != nil {
		sups = append(sups, s)
	}
	if len(sups) == 0 {
		return nil, fmt.Errorf("no services configured: pass --frontend/--backend or a config file")
	}
	return sups, nil
}

func buildService(source scanner.Source, flagPath string, fileCfg *cfg.FileConfig, globalEnv []string) (*supervisor.Supervisor, error) {
	var sc *cfg.ServiceConfig
	if fileCfg != nil {
		if source == scanner.SourceFrontend {
			sc = fileCfg.Frontend
		} else {
			sc = fileCfg.Backend
		}
	}
	path := flagPath
	if path == "" && sc != nil {
		path = sc.Path
	}
	if path == "" {
		return nil, nil
	}
	if st, err := os.Stat(path); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%s project directory %s not usable: %v", source, path, err)
	}

	if sc == nil {
		if source == scanner.SourceFrontend {
			return supervisor.Frontend(path), nil
		}
		return supervisor.Backend(path), nil
	}

	command := sc.Command
	if command == "" {
		if source == scanner.SourceFrontend {
			command = "npm start"
		} else {
			command = env.PythonInterpreter(path) + " app.py"
		}
	}
	warmup := sc.Warmup
	if warmup <= 0 {
		if source == scanner.SourceFrontend {
			warmup = supervisor.DefaultFrontendWarmup
		} else {
			warmup = supervisor.DefaultBackendWarmup
		}
	}
	dets, err := cfg.BuildDetectors(sc.Detectors, string(source))
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		port := sc.Port
		if port <= 0 {
			if source == scanner.SourceFrontend {
				port = supervisor.DefaultFrontendPort
			} else {
				port = supervisor.DefaultBackendPort
			}
		}
		dets = append(dets, detectorForPort(port)...)
	}

	e := env.New()
	for _, kv := range globalEnv {
		if i := strings.IndexByte(kv, '='); i > 0 {
			e.Set(kv[:i], kv[i+1:])
		}
	}

	spec := process.Spec{
		Name:         string(source),
		Command:      command,
		WorkDir:      path,
		Env:          e.Merge(sc.Env),
		GracePeriod:  sc.GracePeriod,
		CaptureBytes: sc.CaptureBytes,
		Detectors:    dets,
	}
	return supervisor.New(source, spec, warmup), nil
}

func createScanCommand(f *ScanFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Statically check a source tree without launching anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.ConfigPath, "config", "", "path to TOML config file (optional)")
	fl.StringVar(&f.Root, "root", ".", "project directory to scan")
	fl.StringVar(&f.Source, "source", "backend", "finding source label (frontend or backend)")
	fl.StringSliceVar(&f.Exts, "ext", []string{".py"}, "file extensions to check")
	fl.StringSliceVar(&f.SkipDirs, "skip-dir", nil, "directory names to skip (defaults to dependency and cache trees)")
	fl.StringVar(&f.Interpreter, "interpreter", "", "python interpreter (defaults to the project virtualenv)")
	fl.BoolVar(&f.Watch, "watch", false, "rescan on file changes until interrupted")
	fl.DurationVar(&f.Debounce, "debounce", 500*time.Millisecond, "watch mode debounce window")
	fl.BoolVar(&f.JSON, "json", false, "print findings as JSON")
	return cmd
}

func runScan(cmd *cobra.Command, f *ScanFlags) error {
	if f.ConfigPath != "" {
		scanCfg, err := cfg.LoadScan(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyScanConfig(cmd, f, scanCfg)
	}
	if st, err := os.Stat(f.Root); err != nil || !st.IsDir() {
		return fmt.Errorf("scan root %s not usable: %v", f.Root, err)
	}
	source := scanner.Source(f.Source)
	if source != scanner.SourceFrontend && source != scanner.SourceBackend {
		return fmt.Errorf("unknown source %q", f.Source)
	}
	interp := f.Interpreter
	if interp == "" {
		interp = env.PythonInterpreter(f.Root)
	}
	sc := scanner.StaticConfig{
		Root:     f.Root,
		Source:   source,
		Exts:     f.Exts,
		SkipDirs: f.SkipDirs,
		Check:    scanner.PyCompileCheck(interp),
	}

	scanOnce := func() []scanner.Finding {
		findings := scanner.StaticScan(sc)
		printFindings(cmd, findings, f.JSON)
		return findings
	}

	if !f.Watch {
		if len(scanOnce()) > 0 {
			return fmt.Errorf("static scan found problems")
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	scanOnce()
	err := scanner.Watch(ctx, f.Root, f.SkipDirs, f.Debounce, func() { scanOnce() })
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// applyScanConfig fills scan settings from the [scan] config section for any
// flag the user did not set explicitly.
func applyScanConfig(cmd *cobra.Command, f *ScanFlags, sc cfg.ScanConfig) {
	flags := cmd.Flags()
	if !flags.Changed("ext") && len(sc.Exts) > 0 {
		f.Exts = sc.Exts
	}
	if !flags.Changed("skip-dir") && len(sc.SkipDirs) > 0 {
		f.SkipDirs = sc.SkipDirs
	}
	if !flags.Changed("debounce") && sc.Debounce > 0 {
		f.Debounce = sc.Debounce
	}
}

func printFindings(cmd *cobra.Command, findings []scanner.Finding, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(findings)
		return
	}
	if len(findings) == 0 {
		cmd.Println("no findings")
		return
	}
	for _, f := range findings {
		loc := f.File
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, f.Line)
		}
		cmd.Printf("%s/%s %s\n", f.Source, f.Category, loc)
	}
}

// defaultOutputDir receives reports when neither the flag nor the config
// names a directory; every run must leave a record file.
const defaultOutputDir = "reports"

func outputDir(f *RunFlags, fileCfg *cfg.FileConfig) string {
	if f.OutputDir != "" {
		return f.OutputDir
	}
	if fileCfg != nil && fileCfg.Output.Dir != "" {
		return fileCfg.Output.Dir
	}
	return defaultOutputDir
}

func buildAdvisor(f *RunFlags, fileCfg *cfg.FileConfig) advisor.Advisor {
	command := f.AdvisorCmd
	timeout := f.AdvisorTimeout
	if command == "" && fileCfg != nil {
		command = fileCfg.Advisor.Command
		if fileCfg.Advisor.Timeout > 0 {
			timeout = fileCfg.Advisor.Timeout
		}
	}
	if command == "" {
		return nil
	}
	return advisor.CommandAdvisor{Command: command, Timeout: timeout}
}

func cfgHistoryDSN(c *cfg.FileConfig) string {
	if c == nil {
		return ""
	}
	return c.History.DSN
}

func cfgMetricsListen(c *cfg.FileConfig) string {
	if c == nil {
		return ""
	}
	return c.Metrics.Listen
}

func cfgServerListen(c *cfg.FileConfig) string {
	if c == nil {
		return ""
	}
	return c.Server.Listen
}

func cfgServerBasePath(c *cfg.FileConfig) string {
	if c == nil {
		return ""
	}
	return c.Server.BasePath
}

func detectorForPort(port int) []detector.Detector {
	if port <= 0 {
		return nil
	}
	return []detector.Detector{detector.PortDetector{Port: port}}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
