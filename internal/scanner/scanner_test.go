package scanner

import (
	"strings"
	"testing"
)

const pyTraceback = `Traceback (most recent call last):
  File "app.py", line 15, in <module>
    from flask_sqlalchemy import SQLAlchemy
ModuleNotFoundError: No module named 'flask_sqlalchemy'
`

const reactCompileFailure = `Failed to compile.

./src/App.js
  Line 5:15:  'React' is not defined  no-undef
`

func TestScanKnownSignatures(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		source Source
		want   Category
	}{
		{
			name:   "python traceback on stderr",
			stderr: pyTraceback,
			source: SourceBackend,
			want:   CategoryRuntimeCrash,
		},
		{
			name:   "python syntax error",
			stderr: "  File \"routes/users.py\", line 8\n    def get(:\nSyntaxError: invalid syntax\n",
			source: SourceBackend,
			want:   CategorySyntaxError,
		},
		{
			name:   "react compile failure",
			stdout: reactCompileFailure,
			source: SourceFrontend,
			want:   CategoryCompileError,
		},
		{
			name:   "webpack unexpected token",
			stderr: "SyntaxError: Unexpected token (10:5)\n",
			source: SourceFrontend,
			want:   CategorySyntaxError,
		},
		{
			name:   "port already bound backend",
			stderr: "OSError: [Errno 98] Address already in use\n",
			source: SourceBackend,
			want:   CategoryPortConflict,
		},
		{
			name:   "port already bound frontend",
			stderr: "Error: listen EADDRINUSE: address already in use :::3000\n",
			source: SourceFrontend,
			want:   CategoryPortConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := Scan(tt.stdout, tt.stderr, tt.source)
			if len(findings) == 0 {
				t.Fatal("expected at least one finding")
			}
			found := false
			for _, f := range findings {
				if f.Category == tt.want {
					found = true
					if f.Source != tt.source {
						t.Errorf("source = %q, want %q", f.Source, tt.source)
					}
					if f.Excerpt == "" {
						t.Error("excerpt empty")
					}
				}
			}
			if !found {
				t.Errorf("no finding with category %q in %+v", tt.want, findings)
			}
		})
	}
}

func TestScanSilenceYieldsNothing(t *testing.T) {
	if findings := Scan("", "", SourceBackend); len(findings) != 0 {
		t.Errorf("empty input produced findings: %+v", findings)
	}
	if findings := Scan("", "", SourceFrontend); len(findings) != 0 {
		t.Errorf("empty input produced findings: %+v", findings)
	}
}

func TestScanHealthyOutputYieldsNothing(t *testing.T) {
	stdout := " * Serving Flask app 'app'\n * Running on http://127.0.0.1:5000\n"
	if findings := Scan(stdout, "", SourceBackend); len(findings) != 0 {
		t.Errorf("healthy banner produced findings: %+v", findings)
	}
}

func TestScanDeduplicatesPerCategory(t *testing.T) {
	repeated := strings.Repeat(pyTraceback, 5)
	findings := Scan("", repeated, SourceBackend)
	byCat := make(map[Category]int)
	for _, f := range findings {
		byCat[f.Category]++
	}
	for cat, n := range byCat {
		if n > 1 {
			t.Errorf("category %q reported %d times in one snapshot", cat, n)
		}
	}
}

func TestScanExtractsPythonLocation(t *testing.T) {
	findings := Scan("", pyTraceback, SourceBackend)
	if len(findings) == 0 {
		t.Fatal("no findings")
	}
	f := findings[0]
	if f.File != "app.py" || f.Line != 15 {
		t.Errorf("location = %s:%d, want app.py:15", f.File, f.Line)
	}
}

func TestScanExtractsFrontendFile(t *testing.T) {
	findings := Scan(reactCompileFailure, "", SourceFrontend)
	if len(findings) == 0 {
		t.Fatal("no findings")
	}
	if !strings.Contains(findings[0].File, "src/App.js") {
		t.Errorf("file = %q, want src/App.js", findings[0].File)
	}
}

func TestScanPortConflictPrecedence(t *testing.T) {
	out := "Traceback (most recent call last):\nOSError: [Errno 98] Address already in use\n"
	findings := Scan("", out, SourceBackend)
	if len(findings) == 0 {
		t.Fatal("no findings")
	}
	if findings[0].Category != CategoryPortConflict {
		t.Errorf("first category = %q, want port_conflict first", findings[0].Category)
	}
}

func TestClip(t *testing.T) {
	if got := Clip("abcdef", 4); got != "cdef" {
		t.Errorf("Clip = %q", got)
	}
	if got := Clip("ab", 4); got != "ab" {
		t.Errorf("Clip short = %q", got)
	}
}
