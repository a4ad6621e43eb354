package zarr

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CodecConfig is a numcodecs compressor or filter description.
type CodecConfig struct {
	ID           string `json:"id"`
	Cname        string `json:"cname,omitempty"`
	Clevel       int    `json:"clevel,omitempty"`
	Shuffle      int    `json:"shuffle,omitempty"`
	Blocksize    int    `json:"blocksize,omitempty"`
	Level        int    `json:"level,omitempty"`
	Acceleration int    `json:"acceleration,omitempty"`
}

// Codec compresses whole chunks.
type Codec interface {
	// Decode decompresses src into a buffer of exactly size bytes.
	Decode(src []byte, size int) ([]byte, error)
	// Encode compresses src whose elements are typesize bytes wide.
	Encode(src []byte, typesize int) ([]byte, error)
}

// NewCodec returns the codec for a compressor description. A nil config
// means chunks are stored uncompressed.
func NewCodec(cfg *CodecConfig) (Codec, error) {
	if cfg == nil {
		return rawCodec{}, nil
	}
	switch cfg.ID {
	case "blosc":
		return newBloscCodec(*cfg)
	case "zstd":
		return zstdCodec{level: cfg.Level}, nil
	case "zlib":
		return zlibCodec{level: cfg.Level}, nil
	case "gzip":
		return gzipCodec{level: cfg.Level}, nil
	case "lz4":
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", cfg.ID)
	}
}

var errSizeMismatch = errors.New("zarr: decoded chunk size mismatch")

func checkSize(b []byte, size int) ([]byte, error) {
	if len(b) != size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", errSizeMismatch, len(b), size)
	}
	return b, nil
}

type rawCodec struct{}

func (rawCodec) Decode(src []byte, size int) ([]byte, error) { return checkSize(src, size) }
func (rawCodec) Encode(src []byte, _ int) ([]byte, error)    { return src, nil }

// Shared zstd coders; both are safe for concurrent DecodeAll/EncodeAll.
var (
	zstdDecoder, _ = zstd.NewReader(nil)
	zstdEncoder, _ = zstd.NewWriter(nil)
)

type zstdCodec struct{ level int }

func (zstdCodec) Decode(src []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zarr: zstd: %w", err)
	}
	return checkSize(out, size)
}

func (zstdCodec) Encode(src []byte, _ int) ([]byte, error) {
	return zstdEncoder.EncodeAll(src, nil), nil
}

type zlibCodec struct{ level int }

func (zlibCodec) Decode(src []byte, size int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zarr: zlib: %w", err)
	}
	defer r.Close()
	return readSized(r, size, "zlib")
}

func (c zlibCodec) Encode(src []byte, _ int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, flateLevel(c.level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type gzipCodec struct{ level int }

func (gzipCodec) Decode(src []byte, size int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zarr: gzip: %w", err)
	}
	defer r.Close()
	return readSized(r, size, "gzip")
}

func (c gzipCodec) Encode(src []byte, _ int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, flateLevel(c.level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flateLevel(level int) int {
	if level < flate.HuffmanOnly || level > flate.BestCompression || level == 0 {
		return flate.DefaultCompression
	}
	return level
}

func readSized(r io.Reader, size int, name string) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("zarr: %s: %w", name, err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: %s stream longer than %d bytes", errSizeMismatch, name, size)
	}
	return out, nil
}

// lz4Codec uses the numcodecs framing: a little-endian uint32 holding the
// decompressed size, followed by one LZ4 block.
type lz4Codec struct{}

func (lz4Codec) Decode(src []byte, size int) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("zarr: lz4: short frame")
	}
	n := int(binary.LittleEndian.Uint32(src))
	if n != size {
		return nil, fmt.Errorf("%w: lz4 header says %d bytes, want %d", errSizeMismatch, n, size)
	}
	out := make([]byte, n)
	got, err := lz4.UncompressBlock(src[4:], out, nil)
	if err != nil {
		return nil, fmt.Errorf("zarr: lz4: %w", err)
	}
	return checkSize(out[:got], size)
}

func (lz4Codec) Encode(src []byte, _ int) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	binary.LittleEndian.PutUint32(out, uint32(len(src)))
	n, err := lz4.CompressBlock(src, out[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("zarr: lz4: %w", err)
	}
	if n == 0 {
		// Incompressible input: emit a literal-only block.
		n = literalBlock(src, out[4:])
	}
	return out[:4+n], nil
}

// literalBlock writes src as a single LZ4 sequence of literals.
func literalBlock(src, dst []byte) int {
	i := 0
	l := len(src)
	if l >= 15 {
		dst[i] = 0xF0
		i++
		for rem := l - 15; ; rem -= 255 {
			if rem >= 255 {
				dst[i] = 255
				i++
				continue
			}
			dst[i] = byte(rem)
			i++
			break
		}
	} else {
		dst[i] = byte(l << 4)
		i++
	}
	i += copy(dst[i:], src)
	return i
}
