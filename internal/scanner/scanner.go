package scanner

import (
	"regexp"
	"strconv"
	"time"
)

// signature maps an output pattern to a finding category.
type signature struct {
	category Category
	re       *regexp.Regexp
}

// Port-bind failures are checked before generic crash patterns: a Python
// "OSError: [Errno 98] Address already in use" would otherwise be
// classified as a runtime crash and hide the actionable cause.
var commonSignatures = []signature{
	{CategoryPortConflict, regexp.MustCompile(`(?i)address already in use|EADDRINUSE|bind.*failed|port.*(already )?in use`)},
}

var frontendSignatures = []signature{
	{CategoryCompileError, regexp.MustCompile(`Failed to compile|Module build failed|Module not found|webpack compiled with \d+ error`)},
	{CategorySyntaxError, regexp.MustCompile(`SyntaxError: [^\n]+|Unexpected token`)},
	{CategoryRuntimeCrash, regexp.MustCompile(`(TypeError|ReferenceError|RangeError): [^\n]+|UnhandledPromiseRejection`)},
}

var backendSignatures = []signature{
	{CategorySyntaxError, regexp.MustCompile(`SyntaxError: [^\n]+|IndentationError: [^\n]+`)},
	{CategoryRuntimeCrash, regexp.MustCompile(`Traceback \(most recent call last\)|(ImportError|ModuleNotFoundError|NameError|AttributeError|TypeError|ValueError|KeyError): [^\n]+`)},
}

// pyLocation extracts the "File "x", line N" frame from a Python traceback.
var pyLocation = regexp.MustCompile(`File "([^"]+)", line (\d+)`)

// jsLocation extracts a source path from webpack/CRA failure output.
var jsLocation = regexp.MustCompile(`(?:\./)?src[/\\][\w/\\.-]+\.(?:jsx?|tsx?)`)

// Scan inspects one snapshot of captured output for known failure
// signatures. Pattern matches are de-duplicated so each category
// contributes at most one finding per call; repeated banners in the same
// snapshot would otherwise flood the report. Empty input yields no
// findings.
func Scan(stdout, stderr string, source Source) []Finding {
	combined := stdout
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr
	}
	if combined == "" {
		return nil
	}

	var sigs []signature
	sigs = append(sigs, commonSignatures...)
	switch source {
	case SourceFrontend:
		sigs = append(sigs, frontendSignatures...)
	case SourceBackend:
		sigs = append(sigs, backendSignatures...)
	}

	now := time.Now()
	seen := make(map[Category]bool)
	var findings []Finding
	for _, sig := range sigs {
		if seen[sig.category] {
			continue
		}
		loc := sig.re.FindStringIndex(combined)
		if loc == nil {
			continue
		}
		seen[sig.category] = true
		f := Finding{
			Source:     source,
			Category:   sig.category,
			Excerpt:    Clip(combined, ExcerptLimit),
			DetectedAt: now,
		}
		fillLocation(&f, combined, source)
		findings = append(findings, f)
	}
	return findings
}

func fillLocation(f *Finding, output string, source Source) {
	switch source {
	case SourceBackend:
		if m := pyLocation.FindStringSubmatch(output); m != nil {
			f.File = m[1]
			if n, err := strconv.Atoi(m[2]); err == nil {
				f.Line = n
			}
		}
	case SourceFrontend:
		if m := jsLocation.FindString(output); m != "" {
			f.File = m
		}
	}
}
