package workbench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/framing"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/message"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/observability"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/script"
	"github.com/rs/zerolog"
)

var (
	ErrSessionClosed = errors.New("workbench: session closed")
	ErrInvalidConfig = errors.New("workbench: invalid session config")
)

const defaultPort = "session"

// Handler receives every message a session produces, in order, on the
// session goroutine. It must not call back into the same Session.
type Handler func(message.Message)

type Config struct {
	Port           string
	Strategy       framing.Strategy
	Persistence    framing.Persistence
	Limits         framing.Limits
	Checksum       checksum.Algorithm
	StripDelimiter bool
	ResetOnError   bool
	Logger         zerolog.Logger
	OnMessage      Handler
	// OnError receives framing errors raised by the timer, which has no
	// caller to return them to.
	OnError func(error)
	Now     func() time.Time
}

type Stats struct {
	Port               string `json:"port"`
	Strategy           string `json:"strategy"`
	Override           string `json:"override,omitempty"`
	Buffered           int    `json:"buffered"`
	FramesReceived     uint64 `json:"frames_received"`
	FramesSent         uint64 `json:"frames_sent"`
	BytesIn            uint64 `json:"bytes_in"`
	BytesOut           uint64 `json:"bytes_out"`
	BytesDropped       uint64 `json:"bytes_dropped"`
	ChecksumMismatches uint64 `json:"checksum_mismatches"`
	FramingErrors      uint64 `json:"framing_errors"`
	Closed             bool   `json:"closed"`
}

type op struct {
	fn   func()
	done chan struct{}
}

// Session owns one connection's framer. Feeds, strategy changes, sends and
// timer expiry all run on a single goroutine, in arrival order.
type Session struct {
	cfg    Config
	logger zerolog.Logger

	ops  chan op
	done chan struct{}

	// loop goroutine only
	framer   *framing.Framer
	base     framing.Strategy
	override *framing.Strategy
	timer    *time.Timer
	armed    bool
	seq      uint64
	closing  bool

	statsMu sync.Mutex
	stats   Stats
}

// Open validates cfg, compiles any script strategy and starts the session
// goroutine.
func Open(cfg Config) (*Session, error) {
	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if _, err := checksum.TrailerWidth(cfg.Checksum); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	port := cfg.Port
	base, override := cfg.Strategy, (*framing.Strategy)(nil)
	if cfg.Persistence == framing.Transient {
		st := cfg.Strategy
		base, override = framing.NoFraming(), &st
	}
	active := base
	if override != nil {
		active = *override
	}
	fr, err := framing.New(active, cfg.Limits, framing.WithScriptObserver(func(d time.Duration) {
		observability.ObserveScript(port, d)
	}))
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		logger:   observability.PortLogger(cfg.Logger, port),
		ops:      make(chan op),
		done:     make(chan struct{}),
		framer:   fr,
		base:     base,
		override: override,
	}
	s.timer = time.NewTimer(time.Hour)
	s.timer.Stop()
	s.updateStats(func(st *Stats) { st.Port = port })
	s.publishStrategy()
	s.logger.Info().Str("strategy", active.String()).Str("checksum", cfg.Checksum.String()).Msg("session opened")

	go s.run()
	return s, nil
}

func (s *Session) Port() string {
	return s.cfg.Port
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case o := <-s.ops:
			o.fn()
			close(o.done)
			if s.closing {
				return
			}
		case <-s.timerC():
			s.armed = false
			s.expire()
		}
	}
}

func (s *Session) timerC() <-chan time.Time {
	if !s.armed {
		return nil
	}
	return s.timer.C
}

func (s *Session) do(ctx context.Context, fn func()) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-o.done
	return nil
}

// Feed hands one received chunk to the framer. Messages for every completed
// frame reach the handler before Feed returns.
func (s *Session) Feed(ctx context.Context, chunk []byte) error {
	var err error
	if derr := s.do(ctx, func() {
		s.updateStats(func(st *Stats) { st.BytesIn += uint64(len(chunk)) })
		observability.RecordBytes(s.cfg.Port, string(message.DirectionReceived), len(chunk))
		err = s.feed(ctx, chunk)
	}); derr != nil {
		return derr
	}
	return err
}

// SetStrategy replaces the base strategy and drops any pending override.
// Buffered bytes are examined under the new strategy right away.
func (s *Session) SetStrategy(ctx context.Context, st framing.Strategy) error {
	var err error
	if derr := s.do(ctx, func() {
		if err = s.framer.SetStrategy(st); err != nil {
			return
		}
		s.base = st
		s.override = nil
		s.publishStrategy()
		s.logger.Info().Str("strategy", st.String()).Msg("strategy changed")
		err = s.feed(ctx, nil)
	}); derr != nil {
		return derr
	}
	return err
}

// Override applies st until one frame has been emitted, then the base
// strategy comes back.
func (s *Session) Override(ctx context.Context, st framing.Strategy) error {
	var err error
	if derr := s.do(ctx, func() {
		if err = s.framer.SetStrategy(st); err != nil {
			return
		}
		s.override = &st
		s.publishStrategy()
		s.logger.Info().Str("strategy", st.String()).Msg("transient strategy applied")
		err = s.feed(ctx, nil)
	}); derr != nil {
		return derr
	}
	return err
}

// Reset discards buffered bytes and cancels a pending timeout.
func (s *Session) Reset(ctx context.Context) ([]byte, error) {
	var dropped []byte
	err := s.do(ctx, func() {
		dropped = s.framer.Reset()
		s.stopTimer()
		s.updateStats(func(st *Stats) {
			st.BytesDropped += uint64(len(dropped))
			st.Buffered = 0
		})
	})
	return dropped, err
}

// Send writes frame to w and reports it as a sent message.
func (s *Session) Send(ctx context.Context, w io.Writer, frame []byte) (message.Message, error) {
	var (
		msg message.Message
		err error
	)
	if derr := s.do(ctx, func() {
		if _, err = w.Write(frame); err != nil {
			s.logger.Warn().Err(err).Msg("write failed")
			return
		}
		msg = message.New(message.Fields{
			ID:        s.nextID(),
			Port:      s.cfg.Port,
			Direction: message.DirectionSent,
			Timestamp: s.cfg.Now(),
			Raw:       frame,
		})
		s.updateStats(func(st *Stats) {
			st.FramesSent++
			st.BytesOut += uint64(len(frame))
		})
		observability.RecordBytes(s.cfg.Port, string(message.DirectionSent), len(frame))
		s.deliver(msg)
	}); derr != nil {
		return message.Message{}, derr
	}
	return msg, err
}

func (s *Session) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Close stops the timer and the goroutine. Bytes still buffered are
// discarded and reported as framing.ErrIncompleteFrame. No message is
// delivered after Close returns.
func (s *Session) Close() error {
	var err error
	derr := s.do(context.Background(), func() {
		s.stopTimer()
		s.closing = true
		dropped, cerr := s.framer.Close()
		if cerr != nil {
			err = cerr
			observability.RecordFramingError(s.cfg.Port, "incomplete_frame")
			s.logger.Warn().Int("bytes", len(dropped)).Msg("incomplete frame discarded on close")
		}
		s.updateStats(func(st *Stats) {
			st.BytesDropped += uint64(len(dropped))
			st.Buffered = 0
			st.Closed = true
		})
		s.logger.Info().Msg("session closed")
	})
	if errors.Is(derr, ErrSessionClosed) {
		return nil
	}
	<-s.done
	return err
}

func (s *Session) feed(ctx context.Context, chunk []byte) error {
	var errs []error
	frames, err := s.framer.Feed(ctx, chunk)
	for len(frames) > 0 {
		s.emit(frames[0])
		frames = frames[1:]
		if s.override == nil {
			continue
		}
		s.revert()
		// the override's error is settled before the base strategy re-feeds
		if err != nil {
			errs = append(errs, s.handleError(err))
		}
		s.framer.Unread(frames...)
		frames, err = s.framer.Feed(ctx, nil)
	}
	if err != nil {
		errs = append(errs, s.handleError(err))
	}
	s.rearm()
	s.updateStats(func(st *Stats) { st.Buffered = s.framer.Buffered() })
	return errors.Join(errs...)
}

func (s *Session) expire() {
	fr, ok := s.framer.Expire()
	if !ok {
		return
	}
	s.emit(fr)
	if s.override != nil {
		s.revert()
	}
	if err := s.feed(context.Background(), nil); err != nil && s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

func (s *Session) revert() {
	if err := s.framer.SetStrategy(s.base); err != nil {
		s.logger.Error().Err(err).Msg("revert to base strategy failed")
		return
	}
	s.override = nil
	s.publishStrategy()
	s.logger.Info().Str("strategy", s.base.String()).Msg("transient strategy reverted")
}

func (s *Session) emit(fr framing.Frame) {
	body := fr.Data[fr.HeaderLen:]
	if s.cfg.StripDelimiter {
		body = fr.Body()
	}
	res, err := checksum.VerifyAndStrip(body, s.cfg.Checksum)
	if err != nil {
		s.logger.Error().Err(err).Msg("checksum verify failed")
		return
	}
	msg := message.New(message.Fields{
		ID:        s.nextID(),
		Port:      s.cfg.Port,
		Direction: message.DirectionReceived,
		Timestamp: s.cfg.Now(),
		Raw:       fr.Data,
		Payload:   res.Payload,
		Checksum:  s.cfg.Checksum,
		Valid:     res.Valid,
	})
	observability.RecordFrame(s.cfg.Port, fr.Kind.String())
	s.updateStats(func(st *Stats) { st.FramesReceived++ })
	if !msg.Valid() {
		observability.RecordChecksumMismatch(s.cfg.Port, s.cfg.Checksum.String())
		s.updateStats(func(st *Stats) { st.ChecksumMismatches++ })
		s.logger.Warn().
			Str("id", msg.ID()).
			Hex("trailer", res.Trailer).
			Hex("expected", res.Expected).
			Msg("checksum mismatch")
	}
	s.logger.Debug().Str("id", msg.ID()).Int("bytes", len(fr.Data)).Msg("frame")
	s.deliver(msg)
}

func (s *Session) deliver(msg message.Message) {
	if s.cfg.OnMessage != nil {
		s.cfg.OnMessage(msg)
	}
}

func (s *Session) handleError(err error) error {
	s.updateStats(func(st *Stats) { st.FramingErrors++ })
	switch {
	case errors.Is(err, framing.ErrFrameTooLarge):
		observability.RecordFramingError(s.cfg.Port, "frame_too_large")
		ev := s.logger.Warn().Err(err)
		if s.cfg.ResetOnError {
			dropped := s.framer.Reset()
			s.updateStats(func(st *Stats) { st.BytesDropped += uint64(len(dropped)) })
			ev = ev.Int("dropped", len(dropped))
		}
		ev.Msg("frame too large")
	case errors.Is(err, script.ErrScriptTimeout):
		observability.RecordFramingError(s.cfg.Port, "script_timeout")
		s.logger.Error().Err(err).Msg("script timed out; framing disabled until reconfigured")
	case errors.Is(err, script.ErrScriptError), errors.Is(err, script.ErrScriptResult):
		observability.RecordFramingError(s.cfg.Port, "script_error")
		s.logger.Warn().Err(err).Msg("script failed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		observability.RecordFramingError(s.cfg.Port, "other")
		s.logger.Warn().Err(err).Msg("framing error")
	}
	return err
}

func (s *Session) rearm() {
	st := s.framer.Strategy()
	if st.Kind != framing.KindTimeout || s.framer.Buffered() == 0 {
		s.stopTimer()
		return
	}
	s.timer.Reset(st.Timeout)
	s.armed = true
}

func (s *Session) stopTimer() {
	s.timer.Stop()
	s.armed = false
}

func (s *Session) nextID() string {
	s.seq++
	return fmt.Sprintf("%s-%d", s.cfg.Port, s.seq)
}

func (s *Session) publishStrategy() {
	base := s.base.String()
	var override string
	if s.override != nil {
		override = s.override.String()
	}
	s.updateStats(func(st *Stats) {
		st.Strategy = base
		st.Override = override
	})
}

func (s *Session) updateStats(fn func(*Stats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}
