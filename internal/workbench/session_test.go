package workbench

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/framing"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/message"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/script"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

type collector struct {
	mu   sync.Mutex
	msgs []message.Message
	ch   chan message.Message
}

func newCollector() *collector {
	return &collector{ch: make(chan message.Message, 64)}
}

func (c *collector) handle(m message.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	c.ch <- m
}

func (c *collector) payloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Payload())
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func openSession(t *testing.T, cfg Config) (*Session, *collector) {
	t.Helper()
	c := newCollector()
	cfg.OnMessage = c.handle
	cfg.Logger = testlog.Logger(t)
	if cfg.Port == "" {
		cfg.Port = "COM-test"
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func TestSessionDelimiterSplitAtAnyOffset(t *testing.T) {
	testlog.Start(t)
	stream := []byte{0xAA, 0xBB, 0x0D, 0x0A, 0xCC, 0xDD, 0x0D, 0x0A}
	want := [][]byte{{0xAA, 0xBB}, {0xCC, 0xDD}}
	for cut := 0; cut <= len(stream); cut++ {
		s, c := openSession(t, Config{
			Strategy:       framing.Delimited([]byte{0x0D, 0x0A}),
			StripDelimiter: true,
		})
		ctx := context.Background()
		if err := s.Feed(ctx, stream[:cut]); err != nil {
			t.Fatalf("cut=%d first feed: %v", cut, err)
		}
		if err := s.Feed(ctx, stream[cut:]); err != nil {
			t.Fatalf("cut=%d second feed: %v", cut, err)
		}
		if diff := cmp.Diff(want, c.payloads()); diff != "" {
			t.Fatalf("cut=%d payload mismatch:\n%s", cut, diff)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("cut=%d close: %v", cut, err)
		}
	}
}

func TestSessionKeepsDelimiterWhenNotStripping(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{Strategy: framing.Delimited([]byte{';'})})
	if err := s.Feed(context.Background(), []byte("ab;")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if diff := cmp.Diff([][]byte{[]byte("ab;")}, c.payloads()); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
}

func TestSessionVerifiesChecksumAfterHeader(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{
		Strategy: framing.PrefixLength(1, framing.BigEndian),
		Checksum: checksum.CRC16,
	})
	ctx := context.Background()
	good := []byte{8, 0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}
	bad := []byte{8, 0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCE}
	if err := s.Feed(ctx, good[:4]); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if c.count() != 0 {
		t.Fatalf("frame emitted before declared length arrived")
	}
	if err := s.Feed(ctx, append(good[4:], bad...)); err != nil {
		t.Fatalf("feed: %v", err)
	}

	c.mu.Lock()
	msgs := append([]message.Message(nil), c.msgs...)
	c.mu.Unlock()
	if len(msgs) != 2 {
		t.Fatalf("messages=%d", len(msgs))
	}
	payload := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	if !msgs[0].Valid() || !bytes.Equal(msgs[0].Payload(), payload) {
		t.Fatalf("good frame: valid=%v payload=% X", msgs[0].Valid(), msgs[0].Payload())
	}
	if msgs[1].Valid() || !bytes.Equal(msgs[1].Payload(), payload) {
		t.Fatalf("bad frame: valid=%v payload=% X", msgs[1].Valid(), msgs[1].Payload())
	}
	if !bytes.Equal(msgs[1].Raw(), bad) {
		t.Fatalf("raw=% X", msgs[1].Raw())
	}
	if got := s.Stats().ChecksumMismatches; got != 1 {
		t.Fatalf("checksum mismatches=%d", got)
	}
}

func TestSessionTimeoutWaitsForSilence(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{Strategy: framing.Timed(100 * time.Millisecond)})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Feed(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("feed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := c.count(); n != 0 {
		t.Fatalf("emitted %d frames while bytes were still arriving", n)
	}

	select {
	case m := <-c.ch:
		if diff := cmp.Diff([]byte{0, 1, 2, 3, 4}, m.Payload()); diff != "" {
			t.Fatalf("payload mismatch:\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout frame never emitted")
	}

	select {
	case m := <-c.ch:
		t.Fatalf("unexpected second frame % X", m.Payload())
	case <-time.After(200 * time.Millisecond):
	}
	if got := s.Stats().Buffered; got != 0 {
		t.Fatalf("buffered=%d", got)
	}
}

func TestSessionTransientPersistenceRevertsAfterOneFrame(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{
		Strategy:       framing.Delimited([]byte{'\n'}),
		Persistence:    framing.Transient,
		StripDelimiter: true,
	})
	if got := s.Stats().Override; got == "" {
		t.Fatalf("transient strategy not reported as override")
	}
	if err := s.Feed(context.Background(), []byte("ab\ncd\n")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	want := [][]byte{[]byte("ab"), []byte("cd\n")}
	if diff := cmp.Diff(want, c.payloads()); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
	st := s.Stats()
	if st.Override != "" || st.Strategy != framing.NoFraming().String() {
		t.Fatalf("strategy=%q override=%q", st.Strategy, st.Override)
	}
}

func TestSessionOverrideRequeuesRemainderUnderBase(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{
		Strategy:       framing.Delimited([]byte{';'}),
		StripDelimiter: true,
	})
	ctx := context.Background()
	if err := s.Override(ctx, framing.PrefixLength(1, framing.BigEndian)); err != nil {
		t.Fatalf("override: %v", err)
	}
	if err := s.Feed(ctx, []byte{2, 'a', ';', 'b', ';'}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	want := [][]byte{[]byte("a;"), []byte("b")}
	if diff := cmp.Diff(want, c.payloads()); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
}

func TestSessionOverrideErrorSurvivesRevert(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{
		Strategy:       framing.Delimited([]byte{';'}),
		StripDelimiter: true,
		Limits:         framing.Limits{MaxFrameBytes: 4},
	})
	ctx := context.Background()
	if err := s.Override(ctx, framing.PrefixLength(1, framing.BigEndian)); err != nil {
		t.Fatalf("override: %v", err)
	}
	// the second header declares more than the limit
	err := s.Feed(ctx, []byte{1, 'a', 9, 'b', ';'})
	if !errors.Is(err, framing.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	want := [][]byte{[]byte("a"), {9, 'b'}}
	if diff := cmp.Diff(want, c.payloads()); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
	st := s.Stats()
	if st.FramingErrors != 1 || st.Override != "" || st.Buffered != 0 {
		t.Fatalf("stats after revert: %+v", st)
	}
}

func TestSessionFrameTooLargeResetsBuffer(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{
		Strategy:     framing.Delimited([]byte{0x0A}),
		Limits:       framing.Limits{MaxFrameBytes: 4},
		ResetOnError: true,
	})
	ctx := context.Background()
	err := s.Feed(ctx, []byte{1, 2, 3, 4, 5, 6})
	if !errors.Is(err, framing.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	st := s.Stats()
	if st.Buffered != 0 || st.BytesDropped != 6 || st.FramingErrors != 1 {
		t.Fatalf("stats after reset: %+v", st)
	}
	if err := s.Feed(ctx, []byte{7, 0x0A}); err != nil {
		t.Fatalf("feed after reset: %v", err)
	}
	if diff := cmp.Diff([][]byte{{7, 0x0A}}, c.payloads()); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
}

func TestSessionScriptTimeoutDisablesFramingUntilReconfigured(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{
		Strategy:       framing.Scripted("while (true) {}", 20*time.Millisecond),
		StripDelimiter: true,
	})
	ctx := context.Background()
	if err := s.Feed(ctx, []byte("x\n")); !errors.Is(err, script.ErrScriptTimeout) {
		t.Fatalf("expected ErrScriptTimeout, got %v", err)
	}
	if err := s.Feed(ctx, []byte("y\n")); !errors.Is(err, script.ErrScriptTimeout) {
		t.Fatalf("expected sticky ErrScriptTimeout, got %v", err)
	}
	if err := s.SetStrategy(ctx, framing.Delimited([]byte{'\n'})); err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	want := [][]byte{[]byte("x"), []byte("y")}
	if diff := cmp.Diff(want, c.payloads()); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
}

func TestOpenRejectsUncompilableScript(t *testing.T) {
	testlog.Start(t)
	_, err := Open(Config{Strategy: framing.Scripted("return (", 0)})
	if !errors.Is(err, script.ErrScriptCompile) {
		t.Fatalf("expected ErrScriptCompile, got %v", err)
	}
	_, err = Open(Config{Strategy: framing.NoFraming(), Checksum: checksum.Algorithm(42)})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSessionCloseDiscardsAndStops(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{Strategy: framing.Timed(30 * time.Millisecond)})
	ctx := context.Background()
	if err := s.Feed(ctx, []byte{1, 2, 3}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := s.Close(); !errors.Is(err, framing.ErrIncompleteFrame) {
		t.Fatalf("expected ErrIncompleteFrame, got %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if n := c.count(); n != 0 {
		t.Fatalf("frame emitted after close: %d", n)
	}
	if err := s.Feed(ctx, []byte{4}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	st := s.Stats()
	if !st.Closed || st.BytesDropped != 3 {
		t.Fatalf("stats after close: %+v", st)
	}
}

func TestSessionResetCancelsPendingTimeout(t *testing.T) {
	testlog.Start(t)
	s, c := openSession(t, Config{Strategy: framing.Timed(30 * time.Millisecond)})
	ctx := context.Background()
	if err := s.Feed(ctx, []byte{9, 9}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	dropped, err := s.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if diff := cmp.Diff([]byte{9, 9}, dropped); diff != "" {
		t.Fatalf("dropped mismatch:\n%s", diff)
	}
	time.Sleep(100 * time.Millisecond)
	if n := c.count(); n != 0 {
		t.Fatalf("frame emitted after reset: %d", n)
	}
}

func TestSessionSendAndReceiveShareSequence(t *testing.T) {
	testlog.Start(t)
	fixed := time.UnixMilli(1700000000123)
	s, c := openSession(t, Config{
		Port:     "COM7",
		Strategy: framing.NoFraming(),
		Now:      func() time.Time { return fixed },
	})
	ctx := context.Background()
	var wire bytes.Buffer
	sent, err := s.Send(ctx, &wire, []byte("ping\r\n"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.ID() != "COM7-1" || sent.Direction() != message.DirectionSent {
		t.Fatalf("sent id=%s direction=%s", sent.ID(), sent.Direction())
	}
	if wire.String() != "ping\r\n" {
		t.Fatalf("wire=%q", wire.String())
	}
	if err := s.Feed(ctx, []byte("pong")); err != nil {
		t.Fatalf("feed: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) != 2 {
		t.Fatalf("messages=%d", len(c.msgs))
	}
	got := c.msgs[1]
	if got.ID() != "COM7-2" || got.Direction() != message.DirectionReceived || !got.Timestamp().Equal(fixed) {
		t.Fatalf("received id=%s direction=%s ts=%s", got.ID(), got.Direction(), got.Timestamp())
	}
	st := s.Stats()
	if st.FramesSent != 1 || st.FramesReceived != 1 || st.BytesOut != 6 || st.BytesIn != 4 {
		t.Fatalf("stats: %+v", st)
	}
}
