package model

import "time"

// CaseStatus is the outcome class of a single test case.
type CaseStatus uint8

const (
	// CasePassed means the case ran to completion without a failure.
	CasePassed CaseStatus = iota
	// CaseFailed means the case raised an assertion-level failure.
	CaseFailed
	// CaseErrored means the engine faulted before or while invoking the
	// case; distinct from a normal assertion failure.
	CaseErrored
	// CaseSkipped means the case was never invoked (setup failure or a
	// cancelled run).
	CaseSkipped
)

// String returns the lower-case name of the status.
func (s CaseStatus) String() string {
	switch s {
	case CasePassed:
		return "passed"
	case CaseFailed:
		return "failed"
	case CaseErrored:
		return "errored"
	case CaseSkipped:
		return "skipped"
	}
	return "unknown"
}

// TestOutcome is the immutable result of one test case invocation.
type TestOutcome struct {
	// Case name as declared in the suite
	Name string `json:"name"`
	// Outcome class
	Status CaseStatus `json:"status"`
	// Text written to standard output during the case
	Stdout string `json:"stdout,omitempty"`
	// Text written to standard error during the case
	Stderr string `json:"stderr,omitempty"`
	// Wall-clock duration of the case
	Duration time.Duration `json:"duration"`
	// Failure or error message, or the skip cause
	Message string `json:"message,omitempty"`
}

// SuiteResult is the ordered outcome of running one suite.
type SuiteResult struct {
	// Suite ID
	SuiteID string `json:"suite_id"`
	// Suite display name
	Name string `json:"name"`
	// Optional suite description
	Description string `json:"description,omitempty"`
	// Path of the suite file
	Path string `json:"path,omitempty"`
	// Per-case outcomes in declaration order
	Cases []TestOutcome `json:"cases"`
	// Output captured while evaluating the suite and running setup
	SetupStdout string `json:"setup_stdout,omitempty"`
	SetupStderr string `json:"setup_stderr,omitempty"`
	// Setup hook failure; when set, every case is skipped
	SetupError string `json:"setup_error,omitempty"`
	// Teardown hook failure; recorded but does not fail passed cases
	TeardownError string `json:"teardown_error,omitempty"`
	// Suite-level error (e.g. the suite file failed to load); when set the
	// suite has no case outcomes
	Err string `json:"error,omitempty"`
	// Wall-clock duration of the whole suite run
	Duration time.Duration `json:"duration"`
}

// Passed reports whether every case passed and no suite-level, setup, or
// teardown error occurred.
func (r SuiteResult) Passed() bool {
	if r.Err != "" || r.SetupError != "" || r.TeardownError != "" {
		return false
	}
	for _, c := range r.Cases {
		if c.Status != CasePassed {
			return false
		}
	}
	return true
}

// RunReport aggregates the results of one batch run. It is created at run
// start, sealed at run completion, and read-only thereafter.
type RunReport struct {
	// Unique ID for this run (16 random bytes, hex encoded)
	ID string `json:"id"`
	// Example the suites belong to
	ExampleID string `json:"example_id"`
	// Timestamp when the run started
	StartedAt time.Time `json:"started_at"`
	// Suite results in the order the suites were supplied
	Suites []SuiteResult `json:"suites"`
	// Aggregate case counts
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	// Total wall time of the batch
	Duration time.Duration `json:"duration"`
}

// Ok reports whether the run finished with no failed or errored cases and
// no suite-level errors.
func (r RunReport) Ok() bool {
	if r.Failed > 0 || r.Errored > 0 {
		return false
	}
	for _, s := range r.Suites {
		if s.Err != "" || s.SetupError != "" || s.TeardownError != "" {
			return false
		}
	}
	return true
}
