package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/multiplex55/koto-learning/engine"
	"github.com/multiplex55/koto-learning/model"
)

// fakeSuite scripts case outcomes by name: nil passes, a *CaseFailure
// fails, any other error is an engine fault.
type fakeSuite struct {
	cases    []string
	results  map[string]error
	setupErr error

	stdout io.Writer
	stderr io.Writer

	setupRuns    int
	teardownRuns int
	invoked      []string

	cancelAfter func(name string)
}

func (f *fakeSuite) Cases() []string   { return f.cases }
func (f *fakeSuite) HasSetup() bool    { return true }
func (f *fakeSuite) HasTeardown() bool { return true }

func (f *fakeSuite) Setup(ctx context.Context) error {
	f.setupRuns++
	fmt.Fprint(f.stdout, "setup output")
	return f.setupErr
}

func (f *fakeSuite) Teardown(ctx context.Context) error {
	f.teardownRuns++
	return nil
}

func (f *fakeSuite) RunCase(ctx context.Context, name string) error {
	f.invoked = append(f.invoked, name)
	fmt.Fprintf(f.stdout, "out:%s", name)
	fmt.Fprintf(f.stderr, "err:%s", name)
	if f.cancelAfter != nil {
		f.cancelAfter(name)
	}
	return f.results[name]
}

func (f *fakeSuite) SetOutput(stdout, stderr io.Writer) {
	f.stdout = stdout
	f.stderr = stderr
}

// fakeEngine serves pre-built suites keyed by suite name.
type fakeEngine struct {
	suites  map[string]*fakeSuite
	loadErr map[string]error
}

func (e *fakeEngine) Execute(ctx context.Context, name, source string) (engine.ExecutionOutcome, error) {
	return engine.ExecutionOutcome{}, nil
}

func (e *fakeEngine) LoadSuite(ctx context.Context, name, source string) (engine.Suite, error) {
	if err := e.loadErr[name]; err != nil {
		return nil, err
	}
	return e.suites[name], nil
}

func task(id string) Task {
	return Task{Suite: model.TestSuite{ID: id, Name: id, Path: id + ".js"}}
}

func TestRunner_RunSuite_Outcomes(t *testing.T) {
	suite := &fakeSuite{
		cases: []string{"passes", "fails", "faults"},
		results: map[string]error{
			"fails":  &engine.CaseFailure{Message: "expected 2, got 3"},
			"faults": errors.New("interpreter panicked"),
		},
	}
	eng := &fakeEngine{suites: map[string]*fakeSuite{"math": suite}}

	r := New(zerolog.Nop(), eng)
	res := r.RunSuite(context.Background(), task("math"))

	require.Empty(t, res.Err)
	require.Equal(t, 1, suite.setupRuns)
	require.Equal(t, 1, suite.teardownRuns)
	require.Equal(t, "setup output", res.SetupStdout)

	require.Len(t, res.Cases, 3)
	require.Equal(t, []string{"passes", "fails", "faults"}, suite.invoked)

	require.Equal(t, model.CasePassed, res.Cases[0].Status)
	require.Equal(t, "out:passes", res.Cases[0].Stdout)
	require.Equal(t, "err:passes", res.Cases[0].Stderr)

	require.Equal(t, model.CaseFailed, res.Cases[1].Status)
	require.Equal(t, "expected 2, got 3", res.Cases[1].Message)
	// Per-case capture: output from earlier cases does not leak forward.
	require.Equal(t, "out:fails", res.Cases[1].Stdout)

	require.Equal(t, model.CaseErrored, res.Cases[2].Status)
	require.Equal(t, "interpreter panicked", res.Cases[2].Message)

	require.False(t, res.Passed())
}

func TestRunner_RunSuite_LoadFailure(t *testing.T) {
	eng := &fakeEngine{loadErr: map[string]error{"broken": errors.New("syntax error at line 3")}}

	r := New(zerolog.Nop(), eng)
	res := r.RunSuite(context.Background(), task("broken"))

	require.Equal(t, "syntax error at line 3", res.Err)
	require.Empty(t, res.Cases)
	require.False(t, res.Passed())
}

func TestRunner_RunSuite_SetupFailureSkipsCases(t *testing.T) {
	suite := &fakeSuite{
		cases:    []string{"a", "b"},
		setupErr: errors.New("fixture unavailable"),
	}
	eng := &fakeEngine{suites: map[string]*fakeSuite{"s": suite}}

	r := New(zerolog.Nop(), eng)
	res := r.RunSuite(context.Background(), task("s"))

	require.Equal(t, "fixture unavailable", res.SetupError)
	require.Empty(t, suite.invoked)
	require.Len(t, res.Cases, 2)
	for _, c := range res.Cases {
		require.Equal(t, model.CaseSkipped, c.Status)
		require.Contains(t, c.Message, "setup failed")
	}
	// Teardown still runs to release partial setup state.
	require.Equal(t, 1, suite.teardownRuns)
	require.False(t, res.Passed())
}

func TestRunner_RunSuite_CancellationBetweenCases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	suite := &fakeSuite{
		cases: []string{"first", "second", "third"},
		cancelAfter: func(name string) {
			if name == "first" {
				cancel()
			}
		},
	}
	eng := &fakeEngine{suites: map[string]*fakeSuite{"s": suite}}

	r := New(zerolog.Nop(), eng)
	res := r.RunSuite(ctx, task("s"))

	// The running case completes; the remaining ones are skipped.
	require.Equal(t, []string{"first"}, suite.invoked)
	require.Len(t, res.Cases, 3)
	require.Equal(t, model.CasePassed, res.Cases[0].Status)
	require.Equal(t, model.CaseSkipped, res.Cases[1].Status)
	require.Contains(t, res.Cases[1].Message, "run cancelled")
	require.Equal(t, model.CaseSkipped, res.Cases[2].Status)

	// Teardown runs even under a cancelled context.
	require.Equal(t, 1, suite.teardownRuns)
}

func TestRunner_RunAll(t *testing.T) {
	eng := &fakeEngine{
		suites: map[string]*fakeSuite{
			"alpha": {
				cases:   []string{"p1", "p2"},
				results: map[string]error{},
			},
			"beta": {
				cases: []string{"p", "f", "e"},
				results: map[string]error{
					"f": &engine.CaseFailure{Message: "nope"},
					"e": errors.New("boom"),
				},
			},
		},
		loadErr: map[string]error{"gamma": errors.New("unparseable")},
	}

	r := New(zerolog.Nop(), eng)
	report := r.RunAll(context.Background(), "ex", []Task{task("alpha"), task("beta"), task("gamma")})

	require.NotEmpty(t, report.ID)
	require.Equal(t, "ex", report.ExampleID)

	// Suites appear in submission order, load failures included.
	require.Len(t, report.Suites, 3)
	require.Equal(t, "alpha", report.Suites[0].SuiteID)
	require.Equal(t, "beta", report.Suites[1].SuiteID)
	require.Equal(t, "gamma", report.Suites[2].SuiteID)
	require.Equal(t, "unparseable", report.Suites[2].Err)
	require.Empty(t, report.Suites[2].Cases)

	require.Equal(t, 3, report.Passed)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Errored)
	require.Equal(t, 0, report.Skipped)
	require.False(t, report.Ok())
}

func TestRunner_RunAll_Empty(t *testing.T) {
	r := New(zerolog.Nop(), &fakeEngine{})
	report := r.RunAll(context.Background(), "ex", nil)

	require.NotEmpty(t, report.ID)
	require.Empty(t, report.Suites)
	require.True(t, report.Ok())
}
