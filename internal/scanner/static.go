package scanner

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultSkipDirs are dependency and cache trees excluded from the static
// pass. Scanning node_modules or a virtualenv would drown real findings.
var DefaultSkipDirs = []string{"node_modules", "venv", ".venv", "__pycache__", ".git", "build", "dist"}

// CheckFunc builds the per-file check command. The command's combined
// output is parsed for a Python-style location and error banner.
type CheckFunc func(path string) *exec.Cmd

// StaticConfig drives a source-tree scan independent of any running
// process.
type StaticConfig struct {
	Root     string
	Source   Source
	Exts     []string // file extensions to check, e.g. [".py"]
	SkipDirs []string // defaults to DefaultSkipDirs
	Check    CheckFunc
}

// PyCompileCheck returns a CheckFunc that byte-compiles one Python file in
// isolation using the given interpreter.
func PyCompileCheck(interpreter string) CheckFunc {
	return func(path string) *exec.Cmd {
		// #nosec G204
		return exec.Command(interpreter, "-m", "py_compile", path)
	}
}

var staticError = regexp.MustCompile(`(SyntaxError|IndentationError|TabError): ([^\n]+)`)

// StaticScan walks the project tree and runs the check command on every
// matching file. It never aborts early: a failing or unreadable file is
// recorded and the walk continues, so one bad file cannot mask the rest.
func StaticScan(cfg StaticConfig) []Finding {
	skip := cfg.SkipDirs
	if skip == nil {
		skip = DefaultSkipDirs
	}
	skipSet := make(map[string]bool, len(skip))
	for _, d := range skip {
		skipSet[d] = true
	}
	exts := make(map[string]bool, len(cfg.Exts))
	for _, e := range cfg.Exts {
		exts[e] = true
	}

	var findings []Finding
	_ = filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			findings = append(findings, unknownFinding(cfg.Source, path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if skipSet[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(exts) > 0 && !exts[filepath.Ext(path)] {
			return nil
		}
		if f, ok := checkFile(cfg, path); ok {
			findings = append(findings, f)
		}
		return nil
	})
	return findings
}

// checkFile runs the check command for one file and reports whether it
// produced a finding.
func checkFile(cfg StaticConfig, path string) (Finding, bool) {
	if _, err := os.Stat(path); err != nil {
		return unknownFinding(cfg.Source, path, err), true
	}
	cmd := cfg.Check(path)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return Finding{}, false
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		// The checker itself could not run; downgrade rather than abort.
		return unknownFinding(cfg.Source, path, err), true
	}

	f := Finding{
		Source:     cfg.Source,
		Category:   CategorySyntaxError,
		File:       path,
		Excerpt:    Clip(strings.TrimSpace(string(out)), ExcerptLimit),
		DetectedAt: time.Now(),
	}
	if m := pyLocation.FindStringSubmatch(string(out)); m != nil {
		f.File = m[1]
		if n, aerr := strconv.Atoi(m[2]); aerr == nil {
			f.Line = n
		}
	}
	if !staticError.MatchString(string(out)) {
		f.Category = CategoryUnknown
	}
	return f, true
}

func unknownFinding(source Source, path string, err error) Finding {
	return Finding{
		Source:     source,
		Category:   CategoryUnknown,
		File:       path,
		Excerpt:    Clip(err.Error(), ExcerptLimit),
		DetectedAt: time.Now(),
	}
}
