// Package runner executes test suites against the embedded engine and
// aggregates batch runs into reports.
package runner

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/multiplex55/koto-learning/engine"
	"github.com/multiplex55/koto-learning/model"
)

// Task is one runnable suite: its catalog identity plus script source.
type Task struct {
	Suite  model.TestSuite
	Source string
}

// Runner drives suites through a single engine handle. The engine is not
// safe for concurrent execution, so cases run strictly one at a time in
// declaration order; later cases may rely on fixture state mutated by
// earlier ones.
type Runner struct {
	logger zerolog.Logger
	eng    engine.Engine
}

// New returns a runner bound to one engine instance.
func New(logger zerolog.Logger, eng engine.Engine) *Runner {
	return &Runner{logger: logger, eng: eng}
}

// RunSuite executes one suite: setup once, every declared case in order,
// teardown once regardless of outcomes. Case output is captured into
// per-invocation buffers and read back when the invocation returns, so
// capture is byte-exact per case but not observable mid-case.
//
// A setup failure skips every case but teardown still runs, releasing any
// partial setup state. Cancellation takes effect between case boundaries
// only; a started case runs to completion.
func (r *Runner) RunSuite(ctx context.Context, task Task) model.SuiteResult {
	start := time.Now()
	res := model.SuiteResult{
		SuiteID:     task.Suite.ID,
		Name:        task.Suite.Name,
		Description: task.Suite.Description,
		Path:        task.Suite.Path,
	}

	r.logger.Info().Str("suite", task.Suite.ID).Str("path", task.Suite.Path).Msg("Running test suite")

	loaded, err := r.eng.LoadSuite(ctx, task.Suite.ID, task.Source)
	if err != nil {
		res.Err = err.Error()
		res.Duration = time.Since(start)
		r.logger.Warn().Str("suite", task.Suite.ID).Err(err).Msg("Test suite failed to load")
		return res
	}

	var stdout, stderr bytes.Buffer
	loaded.SetOutput(&stdout, &stderr)
	declared := loaded.Cases()

	if loaded.HasSetup() {
		if err := loaded.Setup(ctx); err != nil {
			res.SetupError = err.Error()
		}
	}
	res.SetupStdout = stdout.String()
	res.SetupStderr = stderr.String()

	switch {
	case res.SetupError != "":
		// No case is invoked after a setup failure; each is recorded as
		// skipped with the failure as cause.
		for _, name := range declared {
			res.Cases = append(res.Cases, model.TestOutcome{
				Name:    name,
				Status:  model.CaseSkipped,
				Message: fmt.Sprintf("setup failed: %s", res.SetupError),
			})
		}
	default:
		for _, name := range declared {
			if ctx.Err() != nil {
				res.Cases = append(res.Cases, model.TestOutcome{
					Name:    name,
					Status:  model.CaseSkipped,
					Message: fmt.Sprintf("run cancelled: %v", context.Cause(ctx)),
				})
				continue
			}
			res.Cases = append(res.Cases, r.runCase(ctx, loaded, name, &stdout, &stderr))
		}
	}

	if loaded.HasTeardown() {
		stdout.Reset()
		stderr.Reset()
		// Teardown is guaranteed cleanup: it runs even after failures,
		// setup errors, or a cancelled context.
		if err := loaded.Teardown(context.WithoutCancel(ctx)); err != nil {
			res.TeardownError = err.Error()
			r.logger.Warn().Str("suite", task.Suite.ID).Err(err).Msg("Suite teardown failed")
		}
	}

	res.Duration = time.Since(start)
	r.logger.Info().
		Str("suite", task.Suite.ID).
		Int("cases", len(res.Cases)).
		Bool("passed", res.Passed()).
		Dur("duration", res.Duration).
		Msg("Test suite finished")

	return res
}

func (r *Runner) runCase(ctx context.Context, loaded engine.Suite, name string, stdout, stderr *bytes.Buffer) model.TestOutcome {
	stdout.Reset()
	stderr.Reset()

	start := time.Now()
	err := loaded.RunCase(ctx, name)
	outcome := model.TestOutcome{
		Name:     name,
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if err == nil {
		outcome.Status = model.CasePassed
		return outcome
	}
	if msg, ok := engine.AsCaseFailure(err); ok {
		outcome.Status = model.CaseFailed
		outcome.Message = msg
		return outcome
	}
	// Engine-level fault: the case could not be invoked or the engine
	// itself failed. The suite continues with the next case.
	outcome.Status = model.CaseErrored
	outcome.Message = err.Error()
	return outcome
}

// RunAll executes suites sequentially in the order supplied and seals the
// aggregate report. Suites may share mutable fixtures through the engine,
// so they are never interleaved. A suite that fails to load contributes a
// zero-case result with a suite-level error; the batch continues.
func (r *Runner) RunAll(ctx context.Context, exampleID string, tasks []Task) model.RunReport {
	report := model.RunReport{
		ID:        newRunID(),
		ExampleID: exampleID,
		StartedAt: time.Now(),
	}

	for _, task := range tasks {
		res := r.RunSuite(ctx, task)
		report.Suites = append(report.Suites, res)
		for _, c := range res.Cases {
			switch c.Status {
			case model.CasePassed:
				report.Passed++
			case model.CaseFailed:
				report.Failed++
			case model.CaseErrored:
				report.Errored++
			case model.CaseSkipped:
				report.Skipped++
			}
		}
	}

	report.Duration = time.Since(report.StartedAt)

	r.logger.Info().
		Str("run", report.ID).
		Str("example", exampleID).
		Int("passed", report.Passed).
		Int("failed", report.Failed).
		Int("errored", report.Errored).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("Batch run finished")

	return report
}

// newRunID generates a 16-byte hex run identifier.
func newRunID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
