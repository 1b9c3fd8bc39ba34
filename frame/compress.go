package frame

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// errIncompressible is returned when the compressed form is not smaller
// than the input. The caller falls back to CodecNone.
var errIncompressible = errors.New("data is incompressible")

// zstd.Encoder and zstd.Decoder are safe for concurrent use with
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("frame: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("frame: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the body for data under codec, falling back to
// CodecNone when compression does not help.
func compress(data []byte, codec Codec) ([]byte, Codec, error) {
	var (
		body []byte
		err  error
	)
	switch codec {
	case CodecNone:
		return data, CodecNone, nil
	case CodecLZ4:
		body, err = compressLZ4(data)
	case CodecZstd:
		body, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression codec: %s", codec)
	}
	if errors.Is(err, errIncompressible) {
		return data, CodecNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return body, codec, nil
}

// decompress reverses compress. rawLen must match the original length.
func decompress(body []byte, codec Codec, rawLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(body) != rawLen {
			return nil, fmt.Errorf("uncompressed body: size %d does not match expected %d", len(body), rawLen)
		}
		return body, nil
	case CodecLZ4:
		return decompressLZ4(body, rawLen)
	case CodecZstd:
		return decompressZstd(body, rawLen)
	default:
		return nil, fmt.Errorf("unsupported compression codec: %s", codec)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(body []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != rawLen {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, rawLen)
	}
	return dst, nil
}

func compressZstd(data []byte) ([]byte, error) {
	body := zstdEncoder.EncodeAll(data, nil)
	if len(body) >= len(data) {
		return nil, errIncompressible
	}
	return body, nil
}

func decompressZstd(body []byte, rawLen int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawLen)
	}
	return out, nil
}
