package main

import "time"

// RunFlags Flag structs to decouple cobra from logic for testing.
type RunFlags struct {
	ConfigPath     string
	FrontendPath   string
	BackendPath    string
	OutputDir      string
	AdvisorCmd     string
	AdvisorTimeout time.Duration
	HistoryDSN     string
	MetricsListen  string
	Listen         string
	BasePath       string
	LogDir         string
	Once           bool
	Verbose        bool
}

type ScanFlags struct {
	ConfigPath  string
	Root        string
	Source      string
	Exts        []string
	SkipDirs    []string
	Interpreter string
	Watch       bool
	Debounce    time.Duration
	JSON        bool
}
