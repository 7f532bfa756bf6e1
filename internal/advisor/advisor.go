package advisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/stackwatch/stackwatch/internal/scanner"
)

// PlaceholderText is substituted when a collaborator cannot produce a suggestion.
const PlaceholderText = "no suggestion available"

// DefaultTimeout bounds a single collaborator invocation.
const DefaultTimeout = 30 * time.Second

// Suggestion is remediation advice for one finding. The text is opaque;
// it is recorded verbatim in the report.
type Suggestion struct {
	Source      scanner.Source   `json:"source"`
	Category    scanner.Category `json:"category"`
	Explanation string           `json:"explanation"`
	ProposedFix string           `json:"proposed_fix,omitempty"`
	Placeholder bool             `json:"placeholder,omitempty"`
}

// Advisor turns a finding into remediation advice.
type Advisor interface {
	Suggest(ctx context.Context, f scanner.Finding) (Suggestion, error)
}

// CollaboratorError reports a failed collaborator invocation.
type CollaboratorError struct {
	Command string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("advisor command %q failed: %v", e.Command, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Placeholder returns the stand-in suggestion used when advice could not
// be obtained for a finding.
func Placeholder(f scanner.Finding) Suggestion {
	return Suggestion{
		Source:      f.Source,
		Category:    f.Category,
		Explanation: PlaceholderText,
		Placeholder: true,
	}
}

// CommandAdvisor shells out to an external triage command. The finding
// excerpt is written to the command's stdin together with a short header
// naming the source and category; stdout is the advice.
//
// Output convention: the first paragraph (up to the first blank line) is
// the explanation, the remainder the proposed fix. Output without a blank
// line is all explanation.
type CommandAdvisor struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (a CommandAdvisor) Suggest(ctx context.Context, f scanner.Finding) (Suggestion, error) {
	if strings.TrimSpace(a.Command) == "" {
		return Suggestion{}, errors.New("advisor command is empty")
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, a.Command, a.Args...)
	cmd.Stdin = strings.NewReader(promptFor(f))
	// A collaborator that forks keeps the inherited pipes open past the
	// kill; WaitDelay makes Wait abandon them instead of blocking on the
	// whole process tree.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return Suggestion{}, &CollaboratorError{Command: a.Command, Err: err}
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return Suggestion{}, &CollaboratorError{Command: a.Command, Err: errors.New("empty output")}
	}

	s := Suggestion{Source: f.Source, Category: f.Category}
	if i := strings.Index(text, "\n\n"); i >= 0 {
		s.Explanation = strings.TrimSpace(text[:i])
		s.ProposedFix = strings.TrimSpace(text[i+2:])
	} else {
		s.Explanation = text
	}
	return s, nil
}

func promptFor(f scanner.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "source: %s\ncategory: %s\n", f.Source, f.Category)
	if f.File != "" {
		fmt.Fprintf(&b, "file: %s\n", f.File)
	}
	if f.Line > 0 {
		fmt.Fprintf(&b, "line: %d\n", f.Line)
	}
	b.WriteString("\n")
	b.WriteString(f.Excerpt)
	b.WriteString("\n")
	return b.String()
}

// Nop always returns the placeholder suggestion. It is used when no
// advisor command is configured.
type Nop struct{}

func (Nop) Suggest(_ context.Context, f scanner.Finding) (Suggestion, error) {
	return Placeholder(f), nil
}
