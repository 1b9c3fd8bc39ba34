package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Neumenon/graphbin/graphbin"
)

// Writer writes GB1 frames to an io.Writer.
type Writer struct {
	w          io.Writer
	codec      Codec
	withCRC    bool
	withDigest bool
	encodeOpts graphbin.EncodeOptions
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression compresses frame bodies with codec. Payloads that do
// not shrink are stored uncompressed.
func WithCompression(codec Codec) WriterOption {
	return func(w *Writer) {
		w.codec = codec
	}
}

// WithCRC adds a CRC-32 of the payload to each frame.
func WithCRC() WriterOption {
	return func(w *Writer) {
		w.withCRC = true
	}
}

// WithDigest adds a BLAKE3-256 digest of the payload to each frame.
func WithDigest() WriterOption {
	return func(w *Writer) {
		w.withDigest = true
	}
}

// WithEncodeOptions sets the options WriteValue encodes with.
func WithEncodeOptions(opts graphbin.EncodeOptions) WriterOption {
	return func(w *Writer) {
		w.encodeOpts = opts
	}
}

// NewWriter creates a new GB1 frame writer.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	writer := &Writer{w: w, encodeOpts: graphbin.DefaultEncodeOptions()}
	for _, opt := range opts {
		opt(writer)
	}
	return writer
}

// WriteFrame writes a single frame. A CRC or digest already set on f is
// written as given; otherwise they are computed when the writer is
// configured for them.
func (w *Writer) WriteFrame(f *Frame) error {
	body, codec, err := compress(f.Payload, w.codec)
	if err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}

	crc := f.CRC
	if crc == nil && w.withCRC {
		computed := ComputeCRC(f.Payload)
		crc = &computed
	}
	digest := f.Digest
	if digest == nil && w.withDigest {
		computed := Digest(f.Payload)
		digest = &computed
	}

	var flags Flags
	if crc != nil {
		flags |= FlagCRC
	}
	if digest != nil {
		flags |= FlagDigest
	}
	if f.Final {
		flags |= FlagFinal
	}
	version := f.Version
	if version == 0 {
		version = Version
	}

	header := make([]byte, 0, 6+4*binary.MaxVarintLen64+4+32)
	header = append(header, magic[0], magic[1], version, byte(f.Kind), byte(flags), byte(codec))
	header = binary.AppendUvarint(header, f.SID)
	header = binary.AppendUvarint(header, f.Seq)
	header = binary.AppendUvarint(header, uint64(len(f.Payload)))
	header = binary.AppendUvarint(header, uint64(len(body)))
	if crc != nil {
		header = binary.LittleEndian.AppendUint32(header, *crc)
	}
	if digest != nil {
		header = append(header, digest[:]...)
	}

	if _, err := w.w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.w.Write(body); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// WriteValue encodes v with ctx and writes it as a value frame.
func (w *Writer) WriteValue(sid, seq uint64, ctx *graphbin.Context, v *graphbin.Value) error {
	payload, err := graphbin.EncodeWithOptions(ctx, v, w.encodeOpts)
	if err != nil {
		return err
	}
	return w.WriteFrame(&Frame{
		Version: Version,
		Kind:    KindValue,
		SID:     sid,
		Seq:     seq,
		Payload: payload,
	})
}

// WriteAck writes an acknowledgement frame.
func (w *Writer) WriteAck(sid, seq uint64) error {
	return w.WriteFrame(&Frame{Version: Version, Kind: KindAck, SID: sid, Seq: seq})
}

// WriteErr writes an error frame carrying msg.
func (w *Writer) WriteErr(sid, seq uint64, msg string) error {
	return w.WriteFrame(&Frame{Version: Version, Kind: KindErr, SID: sid, Seq: seq, Payload: []byte(msg)})
}

// WritePing writes a ping frame.
func (w *Writer) WritePing(sid, seq uint64) error {
	return w.WriteFrame(&Frame{Version: Version, Kind: KindPing, SID: sid, Seq: seq})
}

// WritePong writes a pong frame.
func (w *Writer) WritePong(sid, seq uint64) error {
	return w.WriteFrame(&Frame{Version: Version, Kind: KindPong, SID: sid, Seq: seq})
}

// WriteFinal writes the last frame of a stream.
func (w *Writer) WriteFinal(sid, seq uint64, kind Kind, payload []byte) error {
	return w.WriteFrame(&Frame{
		Version: Version,
		Kind:    kind,
		SID:     sid,
		Seq:     seq,
		Payload: payload,
		Final:   true,
	})
}
