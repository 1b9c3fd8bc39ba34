// graphbin - graph value codec CLI tool
//
// Usage:
//
//	graphbin encode [--from json|yaml|cbor|msgpack] [--framed] [file]  Encode to graphbin
//	graphbin decode [--to json|cbor|msgpack|text] [--framed] [file]    Decode graphbin
//	graphbin dump [--framed] file...                                   Print a tag-by-tag listing
//	graphbin verify [--framed] [file]                                  Check a re-encode is identical
//	graphbin version                                                   Print version info
//
// Configuration is read from --config (default graphbin.yaml when present)
// and GRAPHBIN_* environment variables.
//
// If no file is given, reads from stdin.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Neumenon/graphbin/frame"
	"github.com/Neumenon/graphbin/graphbin"
)

const libVersion = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "version", "-v", "--version":
		fmt.Printf("graphbin %s (frame v%d)\n", libVersion, frame.Version)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}

	if err := run(cmd, os.Args[2:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "graphbin %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `graphbin - graph value codec CLI tool

Usage:
  graphbin encode [options] [file]    Encode JSON, YAML, CBOR or msgpack to graphbin
  graphbin decode [options] [file]    Decode graphbin to JSON, CBOR, msgpack or text
  graphbin dump [options] file...     Print a tag-by-tag listing of encoded files
  graphbin verify [options] [file]    Decode, re-encode and compare
  graphbin version                    Print version info

Common options:
  --config PATH        Configuration file (default: graphbin.yaml if present)
  --log-level LEVEL    debug, info, warn or error
  --log-format FORMAT  text or json
  --framed             Input or output is a sequence of GB1 frames

Encode options:
  --from FORMAT        json (comments allowed), yaml, cbor or msgpack (default json)
  -o, --output PATH    Write to PATH instead of stdout
  --force              Write binary output to a terminal

Decode options:
  --to FORMAT          json, cbor, msgpack or text (default json)
  -o, --output PATH    Write to PATH instead of stdout
  --force              Write binary output to a terminal

If no file is given, reads from stdin.

Examples:
  echo '{"a":1,"b":"x","c":[1,2,3]}' | graphbin encode -o data.gb
  graphbin decode --to text data.gb
  # Output: {a=1 b="x" c=[1 2 3]}

  graphbin encode --from yaml --framed -o data.gb1 anchors.yaml
  graphbin dump --framed data.gb1
`)
}

// options holds the parsed command line.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	framed     bool
	from       string
	to         string
	output     string
	force      bool
	files      []string
}

func parseFlags(cmd string, args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("graphbin "+cmd, pflag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format")
	fs.BoolVar(&opts.framed, "framed", false, "read or write GB1 frames")

	switch cmd {
	case "encode":
		fs.StringVar(&opts.from, "from", "json", "input format")
		fs.StringVarP(&opts.output, "output", "o", "", "output file")
		fs.BoolVar(&opts.force, "force", false, "write binary output to a terminal")
	case "decode":
		fs.StringVar(&opts.to, "to", "json", "output format")
		fs.StringVarP(&opts.output, "output", "o", "", "output file")
		fs.BoolVar(&opts.force, "force", false, "write binary output to a terminal")
	case "dump", "verify":
	default:
		return nil, fmt.Errorf("unknown command (run 'graphbin help')")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.files = fs.Args()
	if cmd != "dump" && len(opts.files) > 1 {
		return nil, fmt.Errorf("expected at most one input file, got %d", len(opts.files))
	}
	if cmd == "dump" && len(opts.files) == 0 {
		opts.files = []string{"-"}
	}
	return opts, nil
}

func run(cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(opts.configPath, nil)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a := newApp(cfg, NewLogger(os.Stderr, cfg.Log))
	a.log.Debug("configuration loaded",
		"classes", len(cfg.Classes),
		"callables", len(cfg.Callables),
		"tokens", len(cfg.Tokens),
	)

	switch cmd {
	case "dump":
		return a.dumpFiles(stdin, stdout, opts.files, opts.framed)
	case "verify":
		data, err := readInput(opts.fileArg(), stdin)
		if err != nil {
			return err
		}
		report, err := a.verify(data, opts.framed)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, report)
		return err
	}

	data, err := readInput(opts.fileArg(), stdin)
	if err != nil {
		return err
	}

	var (
		out    []byte
		binary bool
	)
	switch cmd {
	case "encode":
		out, err = a.encode(data, opts.from, opts.framed)
		binary = true
	case "decode":
		out, err = a.decode(data, opts.to, opts.framed)
		binary = opts.to == "cbor" || opts.to == "msgpack"
	}
	if err != nil {
		return err
	}
	return writeOutput(opts.output, stdout, out, binary && !opts.force)
}

func (o *options) fileArg() string {
	if len(o.files) == 0 {
		return ""
	}
	return o.files[0]
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// writeOutput writes data to path, or to stdout when path is empty.
// refuseTerminal rejects binary output bound for a terminal.
func writeOutput(path string, stdout io.Writer, data []byte, refuseTerminal bool) error {
	if path != "" && path != "-" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if refuseTerminal {
		if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return errors.New("refusing to write binary output to a terminal (use -o or --force)")
		}
	}
	if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// ============================================================
// Commands
// ============================================================

// app carries what every command needs: the configuration, the Context
// built from it, and the logger.
type app struct {
	cfg *Config
	ctx *graphbin.Context
	log *slog.Logger
}

func newApp(cfg *Config, log *slog.Logger) *app {
	return &app{cfg: cfg, ctx: cfg.NewContext(), log: log}
}

// parse converts input in the named format to a value graph.
func (a *app) parse(data []byte, from string) (*graphbin.Value, error) {
	switch from {
	case "json":
		return graphbin.FromJSON(jsonc.ToJSON(data))
	case "yaml":
		return graphbin.FromYAML(data)
	case "cbor":
		return graphbin.FromCBOR(a.ctx, data)
	case "msgpack":
		return graphbin.FromMsgpack(data)
	default:
		return nil, fmt.Errorf("unknown input format %q", from)
	}
}

// render converts a value graph to the named format.
func (a *app) render(v *graphbin.Value, to string) ([]byte, error) {
	switch to {
	case "json":
		out, err := graphbin.ToJSON(v)
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case "text":
		return []byte(graphbin.Sprint(v) + "\n"), nil
	case "cbor":
		return graphbin.ToCBOR(a.ctx, v)
	case "msgpack":
		return graphbin.ToMsgpack(v)
	default:
		return nil, fmt.Errorf("unknown output format %q", to)
	}
}

func (a *app) encode(data []byte, from string, framed bool) ([]byte, error) {
	v, err := a.parse(data, from)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", from, err)
	}

	if !framed {
		out, err := graphbin.EncodeWithOptions(a.ctx, v, a.cfg.Encode.Options())
		if err != nil {
			return nil, err
		}
		a.log.Debug("encoded", "from", from, "in", len(data), "out", len(out))
		return out, nil
	}

	codec, err := frame.ParseCodec(a.cfg.Frame.Compression)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := frame.NewWriter(&buf, a.cfg.Frame.WriterOptions(codec, a.cfg.Encode.Options())...)
	if err := w.WriteValue(0, 0, a.ctx, v); err != nil {
		return nil, err
	}
	a.log.Debug("encoded frame", "from", from, "codec", codec.String(), "out", buf.Len())
	return buf.Bytes(), nil
}

func (a *app) decode(data []byte, to string, framed bool) ([]byte, error) {
	values, err := a.decodeValues(data, framed)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, v := range values {
		b, err := a.render(v, to)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", to, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// decodeValues decodes a single encoding, or every value frame of a GB1
// stream in order.
func (a *app) decodeValues(data []byte, framed bool) ([]*graphbin.Value, error) {
	if !framed {
		v, err := graphbin.DecodeWithOptions(a.ctx, data, a.cfg.Decode.Options())
		if err != nil {
			return nil, err
		}
		return []*graphbin.Value{v}, nil
	}

	var values []*graphbin.Value
	err := a.eachFrame(data, func(f *frame.Frame) error {
		v, err := graphbin.DecodeWithOptions(a.ctx, f.Payload, a.cfg.Decode.Options())
		if err != nil {
			return fmt.Errorf("sid %d seq %d: %w", f.SID, f.Seq, err)
		}
		values = append(values, v)
		return nil
	})
	return values, err
}

// eachFrame reads a GB1 stream, checks per-stream sequencing and calls
// fn for every value frame. An err frame stops the walk.
func (a *app) eachFrame(data []byte, fn func(*frame.Frame) error) error {
	r := frame.NewReader(bytes.NewReader(data), frame.WithMaxPayload(a.cfg.Frame.MaxPayload))
	cursor := frame.NewCursor()
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cursor.ProcessFrame(f); err != nil {
			return err
		}
		a.log.Debug("frame",
			"sid", f.SID,
			"seq", f.Seq,
			"kind", f.Kind.String(),
			"codec", f.Codec.String(),
			"bytes", len(f.Payload),
		)

		switch f.Kind {
		case frame.KindValue:
			if err := fn(f); err != nil {
				return err
			}
		case frame.KindErr:
			return &frame.RemoteError{SID: f.SID, Seq: f.Seq, Message: string(f.Payload)}
		}
	}
}

// dumpFiles dumps each file concurrently and prints the listings in
// argument order.
func (a *app) dumpFiles(stdin io.Reader, stdout io.Writer, files []string, framed bool) error {
	listings := make([]string, len(files))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range files {
		var data []byte
		if name == "-" {
			var err error
			if data, err = readInput(name, stdin); err != nil {
				return err
			}
		}
		g.Go(func() error {
			if data == nil {
				var err error
				if data, err = readInput(name, nil); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			listing, err := a.dump(name, data, framed)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			listings[i] = listing
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, listing := range listings {
		if _, err := io.WriteString(stdout, listing); err != nil {
			return err
		}
	}
	return nil
}

var headerColor = color.New(color.Bold, color.FgCyan)

func (a *app) dump(name string, data []byte, framed bool) (string, error) {
	var sb bytes.Buffer
	headerColor.Fprintf(&sb, "== %s (%s)\n", name, humanize.Bytes(uint64(len(data))))

	if !framed {
		listing, err := graphbin.Dump(data)
		if err != nil {
			return "", err
		}
		sb.WriteString(listing)
		return sb.String(), nil
	}

	err := a.eachFrame(data, func(f *frame.Frame) error {
		headerColor.Fprintf(&sb, "-- sid=%d seq=%d codec=%s payload=%s digest=%s\n",
			f.SID, f.Seq, f.Codec, humanize.Bytes(uint64(len(f.Payload))),
			frame.DigestHex(frame.Digest(f.Payload))[:16])
		listing, err := graphbin.Dump(f.Payload)
		if err != nil {
			return fmt.Errorf("sid %d seq %d: %w", f.SID, f.Seq, err)
		}
		sb.WriteString(listing)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// verify decodes data, encodes the result again and checks that the
// bytes and the decoded graphs match.
func (a *app) verify(data []byte, framed bool) (string, error) {
	var payloads [][]byte
	if framed {
		err := a.eachFrame(data, func(f *frame.Frame) error {
			payloads = append(payloads, f.Payload)
			return nil
		})
		if err != nil {
			return "", err
		}
	} else {
		payloads = [][]byte{data}
	}

	for i, payload := range payloads {
		v, err := graphbin.DecodeWithOptions(a.ctx, payload, a.cfg.Decode.Options())
		if err != nil {
			return "", fmt.Errorf("value %d: %w", i, err)
		}
		again, err := graphbin.EncodeWithOptions(a.ctx, v, a.cfg.Encode.Options())
		if err != nil {
			return "", fmt.Errorf("value %d: re-encode: %w", i, err)
		}
		if !bytes.Equal(payload, again) {
			return "", fmt.Errorf("value %d: re-encoded %s differs from input %s",
				i, humanize.Bytes(uint64(len(again))), humanize.Bytes(uint64(len(payload))))
		}
		back, err := graphbin.DecodeWithOptions(a.ctx, again, a.cfg.Decode.Options())
		if err != nil {
			return "", fmt.Errorf("value %d: decode re-encoding: %w", i, err)
		}
		if !graphbin.Equal(v, back) {
			return "", fmt.Errorf("value %d: graphs differ after round trip", i)
		}
	}

	a.log.Info("verified", "values", len(payloads), "bytes", len(data))
	return fmt.Sprintf("ok: %d value(s), %s", len(payloads), humanize.Bytes(uint64(len(data)))), nil
}
