package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/codec"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/config"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/framing"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/logging"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/message"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/observability"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/workbench"
	"github.com/rs/zerolog/log"
)

// readChunkSize matches the driver's read buffer, so pipe feeds arrive in
// the same chunk sizes a real port would deliver.
const readChunkSize = 1024

const usage = `usage: serialbench <command> [flags]

commands:
  encode    -config f -text "..."    print the outbound frame as hex
  decode    -config f -hex "..."     print received bytes in the configured view, one line each
  checksum  -algo crc16 -hex "..."   print the trailer for the given bytes
  pipe      -config f [-port name]   frame stdin and print one JSON message per line
`

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "serialbench: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "encode":
		return runEncode(args[1:], stdout)
	case "decode":
		return runDecode(args[1:], stdout)
	case "checksum":
		return runChecksum(args[1:], stdout)
	case "pipe":
		return runPipe(ctx, args[1:], stdin, stdout)
	case "help", "-h", "--help":
		_, err := io.WriteString(stdout, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func loadProfile(path string) (config.Profile, error) {
	cfg, err := loadWorkbenchConfig(path)
	if err != nil {
		return config.Profile{}, err
	}
	return config.Resolve(cfg)
}

func runEncode(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "workbench config path")
	text := fs.String("text", "", "input in the configured view")
	view := fs.String("view", "", "override the configured view")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := loadProfile(*cfgPath)
	if err != nil {
		return err
	}
	out := p.Outbound
	if *view != "" {
		if out.View, err = codec.ParseViewMode(*view); err != nil {
			return err
		}
	}
	frame, err := out.Build(*text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, codec.BytesToHex(frame, codec.DefaultHexFormat()))
	return err
}

func runDecode(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "workbench config path")
	hexIn := fs.String("hex", "", "received bytes as hex")
	view := fs.String("view", "", "override the configured view")
	encoding := fs.String("encoding", "", "override the configured text encoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := loadProfile(*cfgPath)
	if err != nil {
		return err
	}
	if *view != "" {
		if p.View, err = codec.ParseViewMode(*view); err != nil {
			return err
		}
	}
	if *encoding != "" {
		if p.Encoding, err = codec.ParseTextEncoding(*encoding); err != nil {
			return err
		}
	}
	data, err := codec.ParseHexData(*hexIn)
	if err != nil {
		return err
	}
	text, err := codec.Decode(data, p.View, p.Encoding)
	if err != nil {
		return err
	}
	ending := p.LineEnding
	if p.View != codec.ViewText {
		ending = codec.LineEndingNone
	}
	lines, err := codec.SplitByLineEnding(text, ending)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(stdout, line); err != nil {
			return err
		}
	}
	return nil
}

func runChecksum(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("checksum", flag.ContinueOnError)
	algoName := fs.String("algo", "crc16", "none|mod256|xor|crc16")
	hexIn := fs.String("hex", "", "payload as hex")
	verify := fs.Bool("verify", false, "treat -hex as a frame with trailer and verify it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	algo, err := checksum.ParseAlgorithm(*algoName)
	if err != nil {
		return err
	}
	data, err := codec.ParseHexData(*hexIn)
	if err != nil {
		return err
	}
	hexf := codec.DefaultHexFormat()
	if *verify {
		res, err := checksum.VerifyAndStrip(data, algo)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "payload=%s trailer=%s expected=%s valid=%t\n",
			codec.BytesToHex(res.Payload, hexf),
			codec.BytesToHex(res.Trailer, hexf),
			codec.BytesToHex(res.Expected, hexf),
			res.Valid)
		return err
	}
	trailer, err := checksum.Compute(data, algo)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, codec.BytesToHex(trailer, hexf))
	return err
}

func runPipe(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("pipe", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "workbench config path")
	port := fs.String("port", "", "port name for message ids (defaults to the config name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := loadProfile(*cfgPath)
	if err != nil {
		return err
	}

	cfg := p.Session
	if *port != "" {
		cfg.Port = *port
	}
	cfg.Logger = log.Logger
	enc := message.NewEncoder(stdout, p.View, p.Encoding)
	cfg.OnMessage = func(m message.Message) {
		if err := enc.Encode(m); err != nil {
			log.Error().Err(err).Str("id", m.ID()).Msg("write message")
		}
	}
	cfg.OnError = func(err error) {
		log.Warn().Err(err).Msg("framing error after timeout")
	}
	sess, err := workbench.Open(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErr := make(chan error, 1)
	if p.MetricsAddr != "" {
		srv := observability.NewMetricsServer(p.Name, p.CorsOrigins, log.Logger)
		untrack := srv.Track(sess.Port(), func() any { return sess.Stats() })
		defer untrack()
		go func() { serveErr <- srv.Serve(ctx, p.MetricsAddr) }()
	} else {
		serveErr <- nil
	}

	readErr := pump(ctx, sess, stdin)
	closeErr := sess.Close()
	if errors.Is(closeErr, framing.ErrIncompleteFrame) {
		closeErr = nil
	}
	cancel()
	if err := <-serveErr; err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return readErr
	}
	return closeErr
}

// pump feeds stdin to the session until EOF. Framing errors are logged and
// reading continues; the session has already applied its reset policy.
func pump(ctx context.Context, sess *workbench.Session, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := sess.Feed(ctx, buf[:n]); ferr != nil {
				if errors.Is(ferr, context.Canceled) {
					return nil
				}
				log.Warn().Err(ferr).Msg("feed")
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
}
