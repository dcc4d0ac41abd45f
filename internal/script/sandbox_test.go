package script

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/testutil/testlog"
)

const testBudget = 250 * time.Millisecond

func TestCompileRejectsBadSource(t *testing.T) {
	testlog.Start(t)
	for _, src := range []string{"", "   ", "return (", "}{"} {
		if _, err := Compile(src); !errors.Is(err, ErrScriptCompile) {
			t.Fatalf("source %q: expected ErrScriptCompile, got %v", src, err)
		}
	}
}

func TestBoundaryResults(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name     string
		src      string
		buf      []byte
		wantN    int
		wantDone bool
	}{
		{"true is whole buffer", "return data.length >= 3;", []byte{1, 2, 3}, 3, true},
		{"false is incomplete", "return data.length >= 3;", []byte{1, 2}, 0, false},
		{"index", "return data.indexOf(0x55) + 1;", []byte{0xAA, 0x55, 0x01}, 2, true},
		{"zero is incomplete", "return data.indexOf(0x55) + 1;", []byte{0xAA}, 0, false},
		{"undefined is incomplete", "if (data.length > 10) return 1;", []byte{1}, 0, false},
		{"null is incomplete", "return null;", []byte{1}, 0, false},
		{"integral float", "return data.length / 2;", []byte{1, 2, 3, 4}, 2, true},
	}
	for _, tc := range cases {
		s, err := Compile(tc.src, WithBudget(testBudget))
		if err != nil {
			t.Fatalf("%s: compile: %v", tc.name, err)
		}
		n, done, err := s.Boundary(context.Background(), tc.buf)
		if err != nil {
			t.Fatalf("%s: boundary: %v", tc.name, err)
		}
		if n != tc.wantN || done != tc.wantDone {
			t.Fatalf("%s: got (%d,%v) want (%d,%v)", tc.name, n, done, tc.wantN, tc.wantDone)
		}
	}
}

func TestBoundaryUnusableResults(t *testing.T) {
	testlog.Start(t)
	for _, src := range []string{
		`return "3";`,
		"return 1.5;",
		"return data.length + 1;",
		"return {};",
	} {
		s, err := Compile(src, WithBudget(testBudget))
		if err != nil {
			t.Fatalf("compile %q: %v", src, err)
		}
		if _, _, err := s.Boundary(context.Background(), []byte{1, 2}); !errors.Is(err, ErrScriptResult) {
			t.Fatalf("source %q: expected ErrScriptResult, got %v", src, err)
		}
	}
}

func TestScriptExceptionIsWrapped(t *testing.T) {
	testlog.Start(t)
	s, err := Compile(`throw new Error("bad frame");`, WithBudget(testBudget))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, _, err = s.Boundary(context.Background(), []byte{1})
	if !errors.Is(err, ErrScriptError) {
		t.Fatalf("expected ErrScriptError, got %v", err)
	}

	// a failing call leaves the runtime usable
	ok, err := Compile("return data[0] === 1;", WithBudget(testBudget))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if v, err := ok.Validate(context.Background(), []byte{1}); err != nil || !v {
		t.Fatalf("validate got=%v err=%v", v, err)
	}
}

func TestScriptTimeout(t *testing.T) {
	testlog.Start(t)
	var observed time.Duration
	s, err := Compile("while (true) {}", WithBudget(20*time.Millisecond), WithObserver(func(d time.Duration) {
		observed = d
	}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	start := time.Now()
	_, _, err = s.Boundary(context.Background(), []byte{1})
	if !errors.Is(err, ErrScriptTimeout) {
		t.Fatalf("expected ErrScriptTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("interrupt took too long: %v", time.Since(start))
	}
	if observed < 20*time.Millisecond {
		t.Fatalf("observer saw %v", observed)
	}
}

func TestScriptContextCancel(t *testing.T) {
	testlog.Start(t)
	s, err := Compile("while (true) {}", WithBudget(time.Minute))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Call(ctx, []byte{1})
	if !errors.Is(err, ErrScriptTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrScriptTimeout wrapping deadline, got %v", err)
	}
}

func TestRunStringArgument(t *testing.T) {
	testlog.Start(t)
	v, err := Run(context.Background(), "return data.startsWith('OK');", "OK\r\n", WithBudget(testBudget))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v != true {
		t.Fatalf("got %v", v)
	}
}

func TestSandboxIsolation(t *testing.T) {
	testlog.Start(t)
	a, err := Compile("globalThis.leak = 1; return true;", WithBudget(testBudget))
	if err != nil {
		t.Fatalf("compile a: %v", err)
	}
	b, err := Compile("return typeof leak === 'undefined' && typeof require === 'undefined';", WithBudget(testBudget))
	if err != nil {
		t.Fatalf("compile b: %v", err)
	}
	if _, err := a.Call(context.Background(), []byte{}); err != nil {
		t.Fatalf("call a: %v", err)
	}
	ok, err := b.Validate(context.Background(), []byte{})
	if err != nil || !ok {
		t.Fatalf("globals leaked between sandboxes: ok=%v err=%v", ok, err)
	}
}
