package object

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression applied to loose objects at rest. The
// value is persisted as the first byte of every loose object file, so
// the constants are part of the on-disk format and must not be renumbered.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

// DefaultCodec is used by stores that do not pin a codec explicitly.
const DefaultCodec = CodecZstd

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a config string to a Codec. The empty string selects
// the default.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "":
		return DefaultCodec, nil
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression codec %q", s)
	}
}

// The zstd encoder and decoder are concurrency-safe and expensive to
// construct, so one of each is shared by every store in the process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("object: init zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("object: init zstd decoder: %v", err))
	}
}

// compressPayload compresses the envelope with the requested codec and
// returns the payload plus the codec actually used. LZ4 falls back to
// CodecNone when block compression cannot shrink the input, so the tag
// written to disk always describes the bytes that follow it.
func compressPayload(c Codec, envelope []byte) ([]byte, Codec, error) {
	switch c {
	case CodecNone:
		return envelope, CodecNone, nil
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(envelope)))
		n, err := lz4.CompressBlock(envelope, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(envelope) {
			return envelope, CodecNone, nil
		}
		return dst[:n], CodecLZ4, nil
	case CodecZstd:
		return zstdEncoder.EncodeAll(envelope, nil), CodecZstd, nil
	default:
		return nil, 0, fmt.Errorf("unknown compression codec %d", uint8(c))
	}
}

// decompressPayload reverses compressPayload. size is the uncompressed
// envelope length recorded alongside the tag; a payload that does not
// expand to exactly that many bytes is corrupt.
func decompressPayload(c Codec, payload []byte, size uint64) ([]byte, error) {
	var out []byte
	switch c {
	case CodecNone:
		out = payload
	case CodecLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		out = dst[:n]
	case CodecZstd:
		var err error
		out, err = zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compression codec %d", uint8(c))
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("decompressed size %d does not match recorded size %d", len(out), size)
	}
	return out, nil
}
