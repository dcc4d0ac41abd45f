package framing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/script"
)

// Frame is one complete message cut from the stream. Data is owned by the
// frame and never aliases the framer's buffer.
type Frame struct {
	Kind         Kind
	Data         []byte
	HeaderLen    int
	DelimiterLen int
}

// Body is Data without the length header and the delimiter.
func (f Frame) Body() []byte {
	return f.Data[f.HeaderLen : len(f.Data)-f.DelimiterLen]
}

// Framer is the per-connection frame buffer state machine. It is not safe
// for concurrent use; one goroutine must own it (see workbench.Session).
type Framer struct {
	strategy Strategy
	limits   Limits
	buf      []byte
	scanned  int
	sandbox  *script.Sandbox
	fatal    error
	closed   bool

	scriptObserver func(time.Duration)
}

type Option func(*Framer)

// WithScriptObserver receives the wall time of every script invocation.
func WithScriptObserver(fn func(time.Duration)) Option {
	return func(f *Framer) {
		f.scriptObserver = fn
	}
}

// New validates strategy and, for scripts, compiles it before any byte is fed.
func New(strategy Strategy, limits Limits, opts ...Option) (*Framer, error) {
	f := &Framer{limits: limits.withDefaults()}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.SetStrategy(strategy); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Framer) Strategy() Strategy {
	return f.strategy
}

func (f *Framer) Limits() Limits {
	return f.limits
}

// Buffered reports how many bytes wait for a frame boundary.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// SetStrategy swaps the active strategy. Buffered bytes are kept and are
// examined under the new strategy on the next Feed. A script is recompiled
// on every call.
func (f *Framer) SetStrategy(s Strategy) error {
	if f.closed {
		return ErrFramerClosed
	}
	if err := s.Validate(); err != nil {
		return err
	}
	var sandbox *script.Sandbox
	if s.Kind == KindScript {
		opts := []script.Option{script.WithBudget(s.ScriptBudget)}
		if f.scriptObserver != nil {
			opts = append(opts, script.WithObserver(f.scriptObserver))
		}
		sb, err := script.Compile(s.Script, opts...)
		if err != nil {
			return err
		}
		sandbox = sb
	}
	s.Delimiter = append([]byte(nil), s.Delimiter...)
	f.strategy = s
	f.sandbox = sandbox
	f.scanned = 0
	f.fatal = nil
	return nil
}

// Feed appends chunk and returns every frame that became complete. Frames
// cut before an error are still returned alongside it.
func (f *Framer) Feed(ctx context.Context, chunk []byte) ([]Frame, error) {
	if f.closed {
		return nil, ErrFramerClosed
	}
	if f.strategy.Kind == KindNone {
		return f.passThrough(chunk), nil
	}
	f.buf = append(f.buf, chunk...)
	if f.fatal != nil {
		return nil, f.fatal
	}
	return f.extract(ctx)
}

// Expire is the timeout firing: the whole buffer becomes one frame.
func (f *Framer) Expire() (Frame, bool) {
	if f.closed || len(f.buf) == 0 {
		return Frame{}, false
	}
	fr := f.cut(len(f.buf), 0, 0)
	return fr, true
}

// Unread puts frames back in front of the buffer, oldest first, so they are
// cut again by the next Feed.
func (f *Framer) Unread(frames ...Frame) {
	if f.closed || len(frames) == 0 {
		return
	}
	var head []byte
	for _, fr := range frames {
		head = append(head, fr.Data...)
	}
	f.buf = append(head, f.buf...)
	f.scanned = 0
}

// Reset discards buffered bytes and returns them.
func (f *Framer) Reset() []byte {
	dropped := f.buf
	f.buf = nil
	f.scanned = 0
	return dropped
}

// Close ends the framer. A non-empty buffer is discarded and reported as
// ErrIncompleteFrame together with the dropped bytes.
func (f *Framer) Close() ([]byte, error) {
	if f.closed {
		return nil, nil
	}
	f.closed = true
	dropped := f.Reset()
	f.sandbox = nil
	if len(dropped) > 0 {
		return dropped, fmt.Errorf("%w: %d bytes discarded", ErrIncompleteFrame, len(dropped))
	}
	return nil, nil
}

func (f *Framer) passThrough(chunk []byte) []Frame {
	if len(f.buf) > 0 {
		f.buf = append(f.buf, chunk...)
		return []Frame{f.cut(len(f.buf), 0, 0)}
	}
	if len(chunk) == 0 {
		return nil
	}
	return []Frame{{Kind: KindNone, Data: append([]byte(nil), chunk...)}}
}

func (f *Framer) extract(ctx context.Context) ([]Frame, error) {
	var (
		frames []Frame
		err    error
	)
	switch f.strategy.Kind {
	case KindDelimiter:
		frames = f.extractDelimited()
	case KindTimeout:
	case KindPrefixLength:
		frames, err = f.extractPrefixed()
	case KindScript:
		frames, err = f.extractScripted(ctx)
	}
	// prefix-length frames are bounded by their header instead
	if err == nil && f.strategy.Kind != KindPrefixLength && len(f.buf) > f.limits.MaxFrameBytes {
		err = fmt.Errorf("%w: %d bytes buffered without a boundary (limit %d)",
			ErrFrameTooLarge, len(f.buf), f.limits.MaxFrameBytes)
	}
	return frames, err
}

func (f *Framer) extractDelimited() []Frame {
	delim := f.strategy.Delimiter
	var frames []Frame
	for {
		from := f.scanned - len(delim) + 1
		if from < 0 {
			from = 0
		}
		idx := bytes.Index(f.buf[from:], delim)
		if idx < 0 {
			f.scanned = len(f.buf)
			return frames
		}
		end := from + idx + len(delim)
		frames = append(frames, f.cut(end, 0, len(delim)))
	}
}

func (f *Framer) extractPrefixed() ([]Frame, error) {
	width := f.strategy.PrefixWidth
	var frames []Frame
	for len(f.buf) >= width {
		length := f.strategy.readLength(f.buf)
		if length > uint64(f.limits.MaxFrameBytes) {
			return frames, fmt.Errorf("%w: header declares %d bytes (limit %d)",
				ErrFrameTooLarge, length, f.limits.MaxFrameBytes)
		}
		total := width + int(length)
		if len(f.buf) < total {
			break
		}
		frames = append(frames, f.cut(total, width, 0))
	}
	return frames, nil
}

func (f *Framer) extractScripted(ctx context.Context) ([]Frame, error) {
	var frames []Frame
	for len(f.buf) > 0 {
		n, done, err := f.sandbox.Boundary(ctx, f.buf)
		if err != nil {
			// caller cancellation is not fatal
			if errors.Is(err, script.ErrScriptTimeout) && ctx.Err() == nil {
				f.fatal = err
			}
			return frames, err
		}
		if !done {
			break
		}
		frames = append(frames, f.cut(n, 0, 0))
	}
	return frames, nil
}

// cut removes buf[:n] as a frame and shifts the remainder to the front.
func (f *Framer) cut(n, headerLen, delimLen int) Frame {
	data := make([]byte, n)
	copy(data, f.buf[:n])
	rest := copy(f.buf, f.buf[n:])
	f.buf = f.buf[:rest]
	f.scanned = 0
	return Frame{Kind: f.strategy.Kind, Data: data, HeaderLen: headerLen, DelimiterLen: delimLen}
}
