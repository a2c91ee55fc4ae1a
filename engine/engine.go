// Package engine defines the boundary to the embedded scripting engine.
// The orchestration layers treat the engine as an opaque collaborator:
// "evaluate this script", "call this test case". A concrete implementation
// lives in the gojaengine package.
package engine

import (
	"context"
	"errors"
	"io"
	"time"
)

// ExecutionOutcome is what evaluating a standalone example script produced.
type ExecutionOutcome struct {
	// String form of the script's final value, if any
	ReturnValue string
	// Text written to standard output during evaluation
	Stdout string
	// Text written to standard error during evaluation
	Stderr string
	// Wall-clock duration of the evaluation
	Duration time.Duration
}

// Engine is a handle to one embedded interpreter instance. An Engine is not
// safe for concurrent execution: only one script or test case runs at a
// time against a given instance.
type Engine interface {
	// Execute evaluates a standalone script. A script-level error is
	// returned as-is; the outcome still carries any captured output.
	Execute(ctx context.Context, name, source string) (ExecutionOutcome, error)

	// LoadSuite evaluates a test-suite script and returns a handle to its
	// declared cases and hooks. A load error means the suite cannot run at
	// all.
	LoadSuite(ctx context.Context, name, source string) (Suite, error)
}

// Suite is a loaded test suite. Cases execute strictly in declaration
// order; later cases may depend on fixture state mutated by earlier ones.
type Suite interface {
	// Cases returns the declared case names in declaration order.
	Cases() []string

	// HasSetup reports whether the suite declares a setup hook.
	HasSetup() bool

	// HasTeardown reports whether the suite declares a teardown hook.
	HasTeardown() bool

	// Setup invokes the suite-level setup hook.
	Setup(ctx context.Context) error

	// Teardown invokes the suite-level teardown hook.
	Teardown(ctx context.Context) error

	// RunCase invokes one declared case. A *CaseFailure error is an
	// assertion-level failure raised by the script; any other error is an
	// engine-level fault.
	RunCase(ctx context.Context, name string) error

	// SetOutput redirects the script's standard output and error streams.
	// The suite runner swaps in fresh buffers around each invocation.
	SetOutput(stdout, stderr io.Writer)
}

// CaseFailure is an assertion-level failure raised by the script under
// test. It is an expected outcome, not a system fault.
type CaseFailure struct {
	Message string
}

func (f *CaseFailure) Error() string {
	return f.Message
}

// AsCaseFailure unwraps err into a CaseFailure message if it is one.
func AsCaseFailure(err error) (string, bool) {
	var cf *CaseFailure
	if errors.As(err, &cf) {
		return cf.Message, true
	}
	return "", false
}
