package prd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ralphswarm/conductor/internal/common/portutil"
)

// defaultCriterionTimeout bounds every test/custom criterion's shell
// command; criteria carry no timeout setting of their own.
const defaultCriterionTimeout = 120 * time.Second

// maxCapturedOutput caps how much of a failing command's stdout/stderr is
// kept for the resulting error message.
const maxCapturedOutput = 64 * 1024

// VerifyCriterion runs one acceptance criterion against workingDir and
// returns its resulting status.
func VerifyCriterion(ctx context.Context, c AcceptanceCriterion, workingDir string) CriterionStatus {
	var err error
	switch c.Type {
	case CriterionTest:
		err = verifyCommand(ctx, c.Command, workingDir)
	case CriterionFileExists:
		err = verifyFileExists(c.Path, workingDir)
	case CriterionPattern:
		err = verifyPattern(c.File, c.Pattern, workingDir)
	case CriterionCustom:
		err = verifyCommand(ctx, c.Script, workingDir)
	default:
		err = fmt.Errorf("unknown criterion type: %s", c.Type)
	}

	if err != nil {
		return failedStatus(err.Error())
	}
	return passedStatus()
}

// VerifyAllCriteria runs every criterion in story against workingDir and
// returns one status per criterion, in order.
func VerifyAllCriteria(ctx context.Context, criteria []AcceptanceCriterion, workingDir string) []CriterionStatus {
	out := make([]CriterionStatus, len(criteria))
	for i, c := range criteria {
		out[i] = VerifyCriterion(ctx, c, workingDir)
	}
	return out
}

// AllCriteriaPass reports whether every status in statuses passed.
func AllCriteriaPass(statuses []CriterionStatus) bool {
	for _, s := range statuses {
		if !s.Passed {
			return false
		}
	}
	return true
}

func verifyCommand(ctx context.Context, command, workingDir string) error {
	if command == "" {
		return errors.New("empty command")
	}

	// Criterion commands that spin up a dev server for a smoke check (e.g.
	// "vite --port $PORT & curl localhost:$PORT/health") get a real,
	// collision-free port per run, same as a worker's own dev-server spawn.
	resolved, portEnv, err := portutil.TransformCommand(command)
	if err != nil {
		return fmt.Errorf("allocating criterion ports: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, defaultCriterionTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", resolved)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if len(portEnv) > 0 {
		cmd.Env = os.Environ()
		for k, v := range portEnv {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &capped{buf: &stdout, limit: maxCapturedOutput}
	cmd.Stderr = &capped{buf: &stderr, limit: maxCapturedOutput}

	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	if stderr.Len() > 0 {
		return fmt.Errorf("%s", stderr.String())
	}
	if stdout.Len() > 0 {
		return fmt.Errorf("%s", stdout.String())
	}
	return fmt.Errorf("command exited with error: %v", runErr)
}

func verifyFileExists(path, workingDir string) error {
	resolved := resolvePath(path, workingDir)
	if _, err := os.Stat(resolved); err != nil {
		return fmt.Errorf("file does not exist: %s", resolved)
	}
	return nil
}

func verifyPattern(file, pattern, workingDir string) error {
	resolved := resolvePath(file, workingDir)
	content, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", resolved, err)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	if !re.Match(content) {
		return fmt.Errorf("pattern %q did not match %s", pattern, resolved)
	}
	return nil
}

func resolvePath(path, workingDir string) string {
	if path == "" || filepath.IsAbs(path) || workingDir == "" {
		return path
	}
	return filepath.Join(workingDir, path)
}

// capped is an io.Writer that discards writes once limit bytes have been
// buffered, so a runaway command can't blow up memory.
type capped struct {
	buf   *bytes.Buffer
	limit int
}

func (c *capped) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

var _ io.Writer = (*capped)(nil)
