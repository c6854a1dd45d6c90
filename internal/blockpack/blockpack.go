// Package blockpack implements block compression for container payloads.
//
// Compression is best-effort: Compress returns nil when the codec cannot
// shrink the input meaningfully, and callers are expected to keep the
// uncompressed payload in that case.
package blockpack

import (
	"errors"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression algorithm for a payload.
type Codec uint8

const (
	// CodecLZ4 selects LZ4 block compression (fast, moderate ratio).
	CodecLZ4 Codec = iota + 1
	// CodecZSTD selects zstd block compression (slower, better ratio).
	CodecZSTD
)

var (
	// ErrSizeMismatch is returned when decompressed output does not match
	// the expected length.
	ErrSizeMismatch = errors.New("blockpack: decompressed size mismatch")
	// ErrUnknownCodec is returned for an unrecognized codec value.
	ErrUnknownCodec = errors.New("blockpack: unknown codec")
)

// Zstd encoder/decoder are stateless for EncodeAll/DecodeAll use and safe
// for concurrent callers, so a single pair serves the process.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// minSavings is the fraction of the input size a compressed payload must
// not exceed to be considered beneficial.
const minSavings = 0.9

// Compress compresses src with the given codec. It returns nil when the
// result would not be beneficial (ratio guard) or when the codec fails;
// callers treat nil as "keep the raw payload".
func Compress(codec Codec, src []byte) []byte {
	if len(src) == 0 {
		return nil
	}

	var compressed []byte

	switch codec {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, buf, nil)
		if err != nil || n == 0 {
			return nil // incompressible
		}
		compressed = buf[:n]
	case CodecZSTD:
		compressed = zstdEncoder.EncodeAll(src, nil)
	default:
		return nil
	}

	if float64(len(compressed)) > float64(len(src))*minSavings {
		return nil
	}
	return compressed
}

// Decompress decompresses src into a buffer of exactly dstLen bytes.
func Decompress(codec Codec, src []byte, dstLen int) ([]byte, error) {
	dst := make([]byte, dstLen)

	switch codec {
	case CodecLZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		if n != dstLen {
			return nil, ErrSizeMismatch
		}
		return dst, nil
	case CodecZSTD:
		decoded, err := zstdDecoder.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, err
		}
		if len(decoded) != dstLen {
			return nil, ErrSizeMismatch
		}
		return decoded, nil
	default:
		return nil, ErrUnknownCodec
	}
}
