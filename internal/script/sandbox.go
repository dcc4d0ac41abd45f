// Package script runs user-authored framing and validation functions.
//
// A script is the body of a JavaScript function taking one parameter named
// data. Each Sandbox owns a private goja runtime with only the ECMAScript
// builtins available, and every call runs under a wall-clock budget.
package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const (
	DefaultBudget = 5 * time.Millisecond
	ParamName     = "data"
)

var (
	ErrScriptCompile = errors.New("script: compile failed")
	ErrScriptError   = errors.New("script: execution failed")
	ErrScriptTimeout = errors.New("script: time budget exceeded")
	ErrScriptResult  = errors.New("script: unusable result")
)

var errBudgetExceeded = errors.New("budget exceeded")

// Sandbox is one compiled script. It is not safe for concurrent use; the
// owning framer calls it from a single goroutine.
type Sandbox struct {
	source  string
	budget  time.Duration
	vm      *goja.Runtime
	fn      goja.Callable
	observe func(time.Duration)
}

type Option func(*Sandbox)

// WithBudget overrides DefaultBudget. Non-positive values are ignored.
func WithBudget(d time.Duration) Option {
	return func(s *Sandbox) {
		if d > 0 {
			s.budget = d
		}
	}
}

// WithObserver receives the wall time of every call.
func WithObserver(fn func(time.Duration)) Option {
	return func(s *Sandbox) {
		s.observe = fn
	}
}

// Compile builds a Sandbox for source. A source that does not compile is
// rejected here, before any data reaches it.
func Compile(source string, opts ...Option) (*Sandbox, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty source", ErrScriptCompile)
	}
	wrapped := "(function(" + ParamName + ") {\n" + source + "\n})"
	prog, err := goja.Compile("script.js", wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptCompile, err)
	}
	vm := goja.New()
	v, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptCompile, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%w: source did not produce a function", ErrScriptCompile)
	}
	s := &Sandbox{source: source, budget: DefaultBudget, vm: vm, fn: fn}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run compiles source and calls it once with arg.
func Run(ctx context.Context, source string, arg any, opts ...Option) (any, error) {
	s, err := Compile(source, opts...)
	if err != nil {
		return nil, err
	}
	v, err := s.call(ctx, arg)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

func (s *Sandbox) Source() string {
	return s.source
}

func (s *Sandbox) Budget() time.Duration {
	return s.budget
}

// Call invokes the script with arg and returns the exported result.
// []byte arguments arrive in the script as an array of numbers.
func (s *Sandbox) Call(ctx context.Context, arg any) (any, error) {
	v, err := s.call(ctx, arg)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// Boundary asks a framing script where the first complete frame in buf ends.
// true means the whole buffer, a positive integer n means buf[:n], and
// false, null, undefined or 0 mean not yet complete.
func (s *Sandbox) Boundary(ctx context.Context, buf []byte) (int, bool, error) {
	v, err := s.call(ctx, buf)
	if err != nil {
		return 0, false, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, false, nil
	}
	switch x := v.Export().(type) {
	case bool:
		if x && len(buf) > 0 {
			return len(buf), true, nil
		}
		return 0, false, nil
	case int64:
		return boundaryFromInt(x, len(buf))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, false, fmt.Errorf("%w: non-integer boundary %v", ErrScriptResult, x)
		}
		return boundaryFromInt(int64(x), len(buf))
	default:
		return 0, false, fmt.Errorf("%w: boundary of type %T", ErrScriptResult, x)
	}
}

// Validate runs a response validation script and reports its truthiness.
func (s *Sandbox) Validate(ctx context.Context, data []byte) (bool, error) {
	v, err := s.call(ctx, data)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

func boundaryFromInt(n int64, size int) (int, bool, error) {
	if n <= 0 {
		return 0, false, nil
	}
	if n > int64(size) {
		return 0, false, fmt.Errorf("%w: boundary %d beyond buffer of %d bytes", ErrScriptResult, n, size)
	}
	return int(n), true, nil
}

func (s *Sandbox) call(ctx context.Context, arg any) (goja.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		finished bool
	)
	interrupt := func(reason func() error) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			if !finished {
				s.vm.Interrupt(reason())
			}
		}
	}
	timer := time.AfterFunc(s.budget, interrupt(func() error { return errBudgetExceeded }))
	stopCtx := context.AfterFunc(ctx, interrupt(func() error { return context.Cause(ctx) }))

	start := time.Now()
	v, err := s.fn(goja.Undefined(), s.toValue(arg))
	elapsed := time.Since(start)

	mu.Lock()
	finished = true
	mu.Unlock()
	timer.Stop()
	stopCtx()
	s.vm.ClearInterrupt()

	if s.observe != nil {
		s.observe(elapsed)
	}
	if err == nil {
		return v, nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok && cause != nil && !errors.Is(cause, errBudgetExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrScriptTimeout, cause)
		}
		return nil, fmt.Errorf("%w: exceeded %s", ErrScriptTimeout, s.budget)
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return nil, fmt.Errorf("%w: %s", ErrScriptError, exception.Error())
	}
	return nil, fmt.Errorf("%w: %v", ErrScriptError, err)
}

func (s *Sandbox) toValue(arg any) goja.Value {
	switch x := arg.(type) {
	case []byte:
		items := make([]any, len(x))
		for i, b := range x {
			items[i] = int64(b)
		}
		return s.vm.NewArray(items...)
	default:
		return s.vm.ToValue(x)
	}
}
