package env

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var execLookPath = exec.LookPath

type Var map[string]string

// Env composes the environment handed to supervised processes: the OS
// environment as base, then global overrides, then per-process overrides.
type Env struct {
	Var Var // global overrides (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.env = base
}

// Set sets a global override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Merge composes the final environment list, applying in order: cached OS
// base, global overrides, then perProc ("K=V" form) overrides. ${VAR}
// expansion is performed against the composed map (single pass, no
// recursion).
func (e *Env) Merge(perProc []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(perProc))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perProc {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue // malformed entry
		}
		m[kv[:i]] = kv[i+1:]
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}

// PythonInterpreter resolves the interpreter for a backend project with a
// prepared virtualenv: projectDir/venv/bin/python (Scripts\python.exe on
// Windows). Falls back to the system interpreter when no virtualenv exists.
func PythonInterpreter(projectDir string) string {
	var candidate string
	if runtime.GOOS == "windows" {
		candidate = filepath.Join(projectDir, "venv", "Scripts", "python.exe")
	} else {
		candidate = filepath.Join(projectDir, "venv", "bin", "python")
	}
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	if p, err := execLookPath("python3"); err == nil {
		return p
	}
	return "python"
}
