// Package runner shells out to an external test runner binary. It is an
// optional execution path: callers fall back to heuristic execution when
// anything here goes wrong.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
)

const (
	runTimeout    = 2 * time.Minute
	cleanupDelay  = 2 * time.Second
	specFirstLine = "// generated spec, edits are discarded"
)

type CommandRunner struct {
	bin     string
	timeout time.Duration
}

func New(bin string) *CommandRunner {
	return &CommandRunner{bin: bin, timeout: runTimeout}
}

type specFile struct {
	Comment     string                 `json:"comment"`
	HTMLContent string                 `json:"htmlContent"`
	Tests       []domain.GeneratedTest `json:"tests"`
}

// Run writes the tests to a temp spec file and blocks on the runner
// binary. The runner must print a JSON run summary on stdout. The spec
// file is removed shortly after the run so a failed process can still be
// inspected by hand.
func (r *CommandRunner) Run(ctx context.Context, tests []domain.GeneratedTest, htmlContent string) (domain.RunSummary, error) {
	if r.bin == "" {
		return domain.RunSummary{}, fmt.Errorf("runner binary not configured")
	}

	f, err := os.CreateTemp("", "testforge-*.spec.json")
	if err != nil {
		return domain.RunSummary{}, err
	}
	path := f.Name()
	enc := json.NewEncoder(f)
	if err := enc.Encode(specFile{Comment: specFirstLine, HTMLContent: htmlContent, Tests: tests}); err != nil {
		f.Close()
		os.Remove(path)
		return domain.RunSummary{}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return domain.RunSummary{}, err
	}
	defer time.AfterFunc(cleanupDelay, func() { os.Remove(path) })

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.bin, path).Output()
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("runner %s: %w", r.bin, err)
	}

	var summary domain.RunSummary
	if err := json.Unmarshal(out, &summary); err != nil {
		return domain.RunSummary{}, fmt.Errorf("runner output: %w", err)
	}
	if summary.TotalTests == 0 {
		summary.TotalTests = summary.Passed + summary.Failed + summary.Pending
	}
	return summary, nil
}
