package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/vkernel/internal/session"
)

// Config tunes how synthesized programs are compiled and run.
type Config struct {
	// Compiler is the V toolchain executable, resolved via PATH when bare.
	Compiler string
	// Timeout bounds one compile+run cycle; zero means no bound.
	Timeout time.Duration
}

// Engine executes cells against one session.
type Engine struct {
	sess   *session.Session
	runner CommandRunner
	cfg    Config
}

func New(sess *session.Session, runner CommandRunner, cfg Config) *Engine {
	if runner == nil {
		runner = ExecRunner{}
	}
	if strings.TrimSpace(cfg.Compiler) == "" {
		cfg.Compiler = "v"
	}
	return &Engine{sess: sess, runner: runner, cfg: cfg}
}

// Execute runs one cell under the given execution count and returns its
// terminal outcome. Nothing is retried. Declarations are accumulated before
// the compile runs, so a broken declaration persists into future cells the
// same way a re-checked source file would.
func (e *Engine) Execute(ctx context.Context, code string, count int) Outcome {
	fragments := session.Classify(code)
	e.sess.Accumulate(fragments)

	source := e.sess.Synthesize()
	path, err := e.sess.WriteCell(count, source)
	if err != nil {
		return Outcome{
			Status:         StatusRuntimeError,
			Stderr:         fmt.Sprintf("failed to write cell source: %v", err),
			ExitCode:       1,
			ExecutionCount: count,
		}
	}

	runCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	stdout, stderr, exitCode, runErr := e.runner.Run(runCtx, e.cfg.Compiler, "run", path)
	elapsed := time.Since(started)

	out := Outcome{
		Stdout:         string(stdout),
		Stderr:         string(stderr),
		ExitCode:       exitCode,
		ExecutionCount: count,
	}

	switch {
	case runErr == nil:
		out.Status = StatusSuccess
	case runCtx.Err() == context.DeadlineExceeded:
		out.Status = StatusRuntimeError
		out.Stderr = fmt.Sprintf("execution timed out after %s", e.cfg.Timeout)
	case exitCode == exitLaunchFailure:
		out.Status = StatusRuntimeError
		out.Stderr = fmt.Sprintf("could not start %q, is V installed and in PATH? (%v)", e.cfg.Compiler, runErr)
	case isCompileFailure(out):
		out.Status = StatusCompileError
		out.Diagnostics = out.Stderr
	default:
		out.Status = StatusRuntimeError
	}

	log.Debug().
		Str("status", string(out.Status)).
		Int("execution_count", count).
		Int32("exit_code", out.ExitCode).
		Dur("elapsed", elapsed).
		Msg("cell executed")
	return out
}

// isCompileFailure separates compiler rejections from runtime failures.
// `v run` emits diagnostics on stderr before any program output exists, so
// a nonzero exit with no stdout and compiler-shaped stderr is a compile
// error; anything that produced output or panicked is a runtime error.
func isCompileFailure(out Outcome) bool {
	if out.Stdout != "" {
		return false
	}
	if strings.Contains(out.Stderr, "V panic:") {
		return false
	}
	return strings.Contains(out.Stderr, "error:")
}

func splitLines(text string) []string {
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}
