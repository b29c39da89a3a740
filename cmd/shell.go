package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external cluster tooling (hadoop, hdfs, ssh, scp).
// Faked in tests; the default implementation shells out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// execRunner runs commands through os/exec, folding command output into the
// returned error so strategy failures carry the tool's diagnostics
type execRunner struct{}

// NewRunner returns the default shell-backed runner
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, detail)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
