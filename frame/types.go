// Package frame implements GB1, a binary envelope for graphbin payloads.
//
// GB1 carries encoded value graphs over byte streams, providing:
//   - Message boundaries
//   - Multiplexing via stream IDs (sid)
//   - Ordering via sequence numbers (seq)
//   - Optional lz4 or zstd compression
//   - Integrity via optional CRC-32 and BLAKE3 digest
//
// Frame layout:
//
//	"GB" version kind flags codec
//	uvarint sid, seq, rawLen, bodyLen
//	[crc32 LE] [blake3-256]
//	body
//
// Checksums cover the uncompressed payload. The payload is a graphbin
// encoding for value frames and free-form bytes otherwise.
package frame

import (
	"fmt"
	"strconv"
)

// Version is the GB1 protocol version.
const Version uint8 = 1

// magic opens every frame.
var magic = [2]byte{'G', 'B'}

// Kind indicates the semantic category of a frame's payload.
type Kind uint8

const (
	KindValue Kind = 0 // Encoded value graph
	KindAck   Kind = 1 // Acknowledgement
	KindErr   Kind = 2 // Error event
	KindPing  Kind = 3 // Keepalive
	KindPong  Kind = 4 // Ping response
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindAck:
		return "ack"
	case KindErr:
		return "err"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseKind parses a kind name or numeric value.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "value", "0":
		return KindValue, true
	case "ack", "1":
		return KindAck, true
	case "err", "2":
		return KindErr, true
	case "ping", "3":
		return KindPing, true
	case "pong", "4":
		return KindPong, true
	default:
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return 0, false
		}
		return Kind(n), true
	}
}

// Flags for GB1 frames.
type Flags uint8

const (
	FlagCRC    Flags = 0x01 // CRC-32 is present
	FlagDigest Flags = 0x02 // BLAKE3 digest is present
	FlagFinal  Flags = 0x04 // End-of-stream for this SID
)

// Codec identifies the compression applied to a frame body. The values
// are written on the wire.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none", "":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression codec: %q", name)
	}
}

// Frame represents a single GB1 frame.
type Frame struct {
	Version uint8
	Kind    Kind
	SID     uint64 // Stream identifier
	Seq     uint64 // Sequence number (per-SID, monotonic)
	Payload []byte // Uncompressed payload

	// Codec is the compression the body was stored with. Set by the
	// Reader; the Writer chooses its own.
	Codec Codec

	CRC    *uint32   // CRC-32 of payload (nil if not present)
	Digest *[32]byte // BLAKE3-256 of payload (nil if not present)
	Final  bool      // End-of-stream marker
}

// HasCRC returns true if CRC is present.
func (f *Frame) HasCRC() bool {
	return f.CRC != nil
}

// HasDigest returns true if a digest is present.
func (f *Frame) HasDigest() bool {
	return f.Digest != nil
}

// MaxPayloadSize is the default maximum payload size (64 MiB).
const MaxPayloadSize = 64 * 1024 * 1024

// ParseError reports a malformed frame.
type ParseError struct {
	Reason string
	Offset int64
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("gb1: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("gb1: %s", e.Reason)
}

// CRCMismatchError is returned when CRC verification fails.
type CRCMismatchError struct {
	Expected uint32
	Got      uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("gb1: CRC mismatch: expected %08x, got %08x", e.Expected, e.Got)
}

// DigestMismatchError is returned when digest verification fails.
type DigestMismatchError struct {
	Expected [32]byte
	Got      [32]byte
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("gb1: digest mismatch: expected %s, got %s", DigestHex(e.Expected), DigestHex(e.Got))
}

// SequenceError is returned by a Cursor for out-of-order frames.
type SequenceError struct {
	SID    uint64
	Seq    uint64
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("gb1: sid %d seq %d: %s", e.SID, e.Seq, e.Reason)
}

// RemoteError carries the payload of an err frame.
type RemoteError struct {
	SID     uint64
	Seq     uint64
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gb1: remote error on sid %d seq %d: %s", e.SID, e.Seq, e.Message)
}
