// Package gojaengine implements the engine boundary on top of the goja
// JavaScript interpreter. Example scripts and suites are plain JS; a suite
// exports its cases as function-valued properties of a global "tests"
// object, with optional "setup" and "teardown" hooks.
package gojaengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/multiplex55/koto-learning/engine"
)

const (
	suiteGlobal  = "tests"
	setupHook    = "setup"
	teardownHook = "teardown"
)

// Engine creates one fresh interpreter per script or suite, so state never
// leaks between examples. A single Engine value may serve many sequential
// runs but never concurrent ones.
type Engine struct {
	logger zerolog.Logger
	// Structured engine-level log emissions (the script's log() binding)
	// go here, kept apart from per-case stdout/stderr capture.
	engineLog io.Writer
}

// New returns an engine. engineLog may be nil to discard log() output.
func New(logger zerolog.Logger, engineLog io.Writer) *Engine {
	if engineLog == nil {
		engineLog = io.Discard
	}
	return &Engine{logger: logger, engineLog: engineLog}
}

// Execute evaluates a standalone example script and captures its output
// and final value.
func (e *Engine) Execute(ctx context.Context, name, source string) (engine.ExecutionOutcome, error) {
	vm, stdout, stderr := e.newVM()
	var outBuf, errBuf bytes.Buffer
	stdout.set(&outBuf)
	stderr.set(&errBuf)
	start := time.Now()

	stop := interruptOn(ctx, vm)
	value, err := vm.RunScript(name, source)
	stop()

	outcome := engine.ExecutionOutcome{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		return outcome, fmt.Errorf("script error: %w", err)
	}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		outcome.ReturnValue = value.String()
	}
	return outcome, nil
}

// LoadSuite evaluates a suite script and resolves its declared cases and
// hooks. Case order follows property declaration order of the tests
// object.
func (e *Engine) LoadSuite(ctx context.Context, name, source string) (engine.Suite, error) {
	vm, stdout, stderr := e.newVM()

	stop := interruptOn(ctx, vm)
	_, err := vm.RunScript(name, source)
	stop()
	if err != nil {
		return nil, fmt.Errorf("suite %s failed to evaluate: %w", name, err)
	}

	exported := vm.Get(suiteGlobal)
	if exported == nil || goja.IsUndefined(exported) || goja.IsNull(exported) {
		return nil, fmt.Errorf("suite %s declares no %q object", name, suiteGlobal)
	}
	obj := exported.ToObject(vm)

	s := &suite{
		vm:     vm,
		obj:    obj,
		cases:  make(map[string]goja.Callable),
		stdout: stdout,
		stderr: stderr,
	}

	for _, key := range obj.Keys() {
		fn, ok := goja.AssertFunction(obj.Get(key))
		if !ok {
			continue
		}
		switch key {
		case setupHook:
			s.setup = fn
		case teardownHook:
			s.teardown = fn
		default:
			s.cases[key] = fn
			s.order = append(s.order, key)
		}
	}

	if len(s.cases) == 0 {
		return nil, fmt.Errorf("suite %s declares no test cases", name)
	}

	e.logger.Debug().Str("suite", name).Int("cases", len(s.order)).Msg("Loaded test suite")
	return s, nil
}

type suite struct {
	vm       *goja.Runtime
	obj      *goja.Object
	order    []string
	cases    map[string]goja.Callable
	setup    goja.Callable
	teardown goja.Callable
	stdout   *switchWriter
	stderr   *switchWriter
}

func (s *suite) Cases() []string {
	return append([]string(nil), s.order...)
}

func (s *suite) HasSetup() bool {
	return s.setup != nil
}

func (s *suite) HasTeardown() bool {
	return s.teardown != nil
}

func (s *suite) Setup(ctx context.Context) error {
	if s.setup == nil {
		return nil
	}
	return s.call(ctx, s.setup)
}

func (s *suite) Teardown(ctx context.Context) error {
	if s.teardown == nil {
		return nil
	}
	return s.call(ctx, s.teardown)
}

func (s *suite) RunCase(ctx context.Context, name string) error {
	fn, ok := s.cases[name]
	if !ok {
		return fmt.Errorf("unknown test case %q", name)
	}
	return s.call(ctx, fn)
}

func (s *suite) SetOutput(stdout, stderr io.Writer) {
	s.stdout.set(stdout)
	s.stderr.set(stderr)
}

// call invokes a suite function with the tests object as receiver. A value
// thrown by the script is an assertion-level failure; everything else
// (interrupts, stack exhaustion) is an engine fault.
func (s *suite) call(ctx context.Context, fn goja.Callable) error {
	stop := interruptOn(ctx, s.vm)
	_, err := fn(s.obj)
	stop()
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return err
	}
	var thrown *goja.Exception
	if errors.As(err, &thrown) {
		return &engine.CaseFailure{Message: thrown.Value().String()}
	}
	return err
}

// newVM builds an interpreter with the host bindings the examples rely on:
// print/console for captured output, echo, now, uuid, and log for the
// engine-level log feed.
func (e *Engine) newVM() (*goja.Runtime, *switchWriter, *switchWriter) {
	vm := goja.New()
	stdout := &switchWriter{w: io.Discard}
	stderr := &switchWriter{w: io.Discard}

	printTo := func(w *switchWriter) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fmt.Fprintln(w, formatArgs(call.Arguments))
			return goja.Undefined()
		}
	}

	_ = vm.Set("print", printTo(stdout))

	console := vm.NewObject()
	_ = console.Set("log", printTo(stdout))
	_ = console.Set("error", printTo(stderr))
	_ = vm.Set("console", console)

	_ = vm.Set("echo", func(call goja.FunctionCall) goja.Value {
		fmt.Fprintln(stdout, formatArgs(call.Arguments))
		if len(call.Arguments) > 0 {
			return call.Arguments[0]
		}
		return goja.Undefined()
	})

	_ = vm.Set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(time.Now().UnixMilli())
	})

	_ = vm.Set("uuid", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(uuid.NewString())
	})

	_ = vm.Set("log", func(call goja.FunctionCall) goja.Value {
		msg := formatArgs(call.Arguments)
		fmt.Fprintln(e.engineLog, msg)
		e.logger.Debug().Str("source", "script").Msg(msg)
		return goja.Undefined()
	})

	return vm, stdout, stderr
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}

// interruptOn arms a cooperative interrupt for the duration of one call.
// The returned stop func disarms it and clears any pending interrupt so
// the interpreter stays usable for teardown.
func interruptOn(ctx context.Context, vm *goja.Runtime) func() {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	quit := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(context.Cause(ctx))
		case <-quit:
		}
	}()
	return func() {
		close(quit)
		vm.ClearInterrupt()
	}
}

// switchWriter lets the runner swap capture buffers between invocations
// without rebuilding the interpreter's bindings.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) set(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
