package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Neumenon/graphbin/graphbin"
)

// Reader reads GB1 frames from an io.Reader.
type Reader struct {
	in         countingReader
	maxPayload int
	verifyCRC  bool
	decodeOpts graphbin.DecodeOptions
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxPayload sets the maximum payload size (default: 64 MiB).
func WithMaxPayload(max int) ReaderOption {
	return func(r *Reader) {
		r.maxPayload = max
	}
}

// WithCRCVerification enables or disables CRC verification. It is on by
// default. Digests are always verified.
func WithCRCVerification(verify bool) ReaderOption {
	return func(r *Reader) {
		r.verifyCRC = verify
	}
}

// WithDecodeOptions sets the options ReadValue decodes with.
func WithDecodeOptions(opts graphbin.DecodeOptions) ReaderOption {
	return func(r *Reader) {
		r.decodeOpts = opts
	}
}

// NewReader creates a new GB1 frame reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{
		in:         countingReader{r: bufio.NewReader(r)},
		maxPayload: MaxPayloadSize,
		verifyCRC:  true,
		decodeOpts: graphbin.DefaultDecodeOptions(),
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// countingReader tracks the stream offset for error reports.
type countingReader struct {
	r      *bufio.Reader
	offset int64
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.offset++
	}
	return b, err
}

func (c *countingReader) readFull(p []byte) error {
	n, err := io.ReadFull(c.r, p)
	c.offset += int64(n)
	return err
}

func (r *Reader) truncated(what string) error {
	return &ParseError{Reason: "truncated " + what, Offset: r.in.offset}
}

// Next reads and returns the next frame.
// Returns io.EOF when the input ends cleanly between frames.
func (r *Reader) Next() (*Frame, error) {
	start := r.in.offset
	first, err := r.in.ReadByte()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var fixed [5]byte
	if err := r.in.readFull(fixed[:]); err != nil {
		return nil, r.truncated("header")
	}
	if first != magic[0] || fixed[0] != magic[1] {
		return nil, &ParseError{Reason: "bad magic", Offset: start}
	}
	f := &Frame{
		Version: fixed[1],
		Kind:    Kind(fixed[2]),
		Codec:   Codec(fixed[4]),
	}
	flags := Flags(fixed[3])
	if f.Version != Version {
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported version %d", f.Version), Offset: start + 2}
	}
	f.Final = flags&FlagFinal != 0

	var lens [4]uint64
	for i := range lens {
		if lens[i], err = binary.ReadUvarint(&r.in); err != nil {
			return nil, r.truncated("header")
		}
	}
	f.SID, f.Seq = lens[0], lens[1]
	rawLen, bodyLen := lens[2], lens[3]
	if rawLen > uint64(r.maxPayload) || bodyLen > uint64(r.maxPayload) {
		return nil, &ParseError{
			Reason: fmt.Sprintf("payload too large: %d > %d", max(rawLen, bodyLen), r.maxPayload),
			Offset: -1,
		}
	}

	if flags&FlagCRC != 0 {
		var b [4]byte
		if err := r.in.readFull(b[:]); err != nil {
			return nil, r.truncated("crc")
		}
		crc := binary.LittleEndian.Uint32(b[:])
		f.CRC = &crc
	}
	if flags&FlagDigest != 0 {
		var d [32]byte
		if err := r.in.readFull(d[:]); err != nil {
			return nil, r.truncated("digest")
		}
		f.Digest = &d
	}

	body := make([]byte, bodyLen)
	if err := r.in.readFull(body); err != nil {
		return nil, r.truncated("payload")
	}
	f.Payload, err = decompress(body, f.Codec, int(rawLen))
	if err != nil {
		return nil, &ParseError{Reason: err.Error(), Offset: r.in.offset - int64(bodyLen)}
	}
	if len(f.Payload) == 0 {
		f.Payload = nil
	}

	if r.verifyCRC && f.CRC != nil {
		if got := ComputeCRC(f.Payload); got != *f.CRC {
			return nil, &CRCMismatchError{Expected: *f.CRC, Got: got}
		}
	}
	if f.Digest != nil {
		if got := Digest(f.Payload); got != *f.Digest {
			return nil, &DigestMismatchError{Expected: *f.Digest, Got: got}
		}
	}
	return f, nil
}

// ReadAll reads all frames until EOF.
func (r *Reader) ReadAll() ([]*Frame, error) {
	var frames []*Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// ReadValue reads up to the next value frame and decodes its payload
// with ctx. Ack, ping and pong frames are skipped; an err frame is
// returned as a *RemoteError.
func (r *Reader) ReadValue(ctx *graphbin.Context) (*Frame, *graphbin.Value, error) {
	for {
		f, err := r.Next()
		if err != nil {
			return nil, nil, err
		}
		switch f.Kind {
		case KindValue:
			v, err := graphbin.DecodeWithOptions(ctx, f.Payload, r.decodeOpts)
			if err != nil {
				return f, nil, fmt.Errorf("sid %d seq %d: %w", f.SID, f.Seq, err)
			}
			return f, v, nil
		case KindErr:
			return f, nil, &RemoteError{SID: f.SID, Seq: f.Seq, Message: string(f.Payload)}
		}
	}
}
