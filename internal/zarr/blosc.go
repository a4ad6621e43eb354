package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// Blosc1 frame layout: a 16-byte header followed by one int32 offset per
// block. Each block holds one or more streams, each prefixed by its
// compressed length.
const (
	bloscHeaderSize    = 16
	bloscVersionFormat = 2

	bloscFlagShuffle    = 0x1
	bloscFlagMemcpyed   = 0x2
	bloscFlagBitshuffle = 0x4
	bloscFlagDontSplit  = 0x10

	bloscMaxSplitTypesize = 16
)

// Compressor codes stored in bits 5-7 of the header flags.
const (
	bloscBloscLZ = 0
	bloscLZ4     = 1
	bloscSnappy  = 2
	bloscZlib    = 3
	bloscZstd    = 4
)

// bloscCodes lists the compressors that can be decoded. blosclz has no Go
// implementation and is rejected when metadata is parsed.
var bloscCodes = map[string]int{
	"lz4":     bloscLZ4,
	"lz4hc":   bloscLZ4,
	"snappy":  bloscSnappy,
	"zlib":    bloscZlib,
	"zstd":    bloscZstd,
}

type bloscCodec struct {
	code      int
	clevel    int
	shuffle   int
	blocksize int
}

func newBloscCodec(cfg CodecConfig) (Codec, error) {
	code, ok := bloscCodes[cfg.Cname]
	if !ok {
		return nil, fmt.Errorf("zarr: unsupported blosc compressor %q", cfg.Cname)
	}
	if cfg.Shuffle == 2 {
		return nil, fmt.Errorf("zarr: blosc bitshuffle is not supported")
	}
	return bloscCodec{code: code, clevel: cfg.Clevel, shuffle: cfg.Shuffle, blocksize: cfg.Blocksize}, nil
}

func (bloscCodec) Decode(src []byte, size int) ([]byte, error) {
	return bloscDecompress(src, size)
}

func bloscDecompress(src []byte, size int) ([]byte, error) {
	if len(src) < bloscHeaderSize {
		return nil, fmt.Errorf("zarr: blosc: short header (%d bytes)", len(src))
	}
	flags := src[2]
	typesize := int(src[3])
	nbytes := int(binary.LittleEndian.Uint32(src[4:]))
	blocksize := int(binary.LittleEndian.Uint32(src[8:]))
	ctbytes := int(binary.LittleEndian.Uint32(src[12:]))

	if nbytes != size {
		return nil, fmt.Errorf("%w: blosc header says %d bytes, want %d", errSizeMismatch, nbytes, size)
	}
	if ctbytes > len(src) {
		return nil, fmt.Errorf("zarr: blosc: frame truncated (%d of %d bytes)", len(src), ctbytes)
	}
	out := make([]byte, nbytes)
	if flags&bloscFlagMemcpyed != 0 {
		if len(src) < bloscHeaderSize+nbytes {
			return nil, fmt.Errorf("zarr: blosc: memcpyed frame truncated")
		}
		copy(out, src[bloscHeaderSize:bloscHeaderSize+nbytes])
		return out, nil
	}
	if flags&bloscFlagBitshuffle != 0 && typesize > 1 {
		return nil, fmt.Errorf("zarr: blosc bitshuffle is not supported")
	}
	if nbytes == 0 {
		return out, nil
	}
	if blocksize <= 0 || typesize == 0 {
		return nil, fmt.Errorf("zarr: blosc: invalid header (blocksize %d, typesize %d)", blocksize, typesize)
	}
	decompress, err := bloscDecompressor(int(flags>>5) & 0x7)
	if err != nil {
		return nil, err
	}

	nblocks := nbytes / blocksize
	leftover := nbytes % blocksize
	if leftover > 0 {
		nblocks++
	}
	if len(src) < bloscHeaderSize+4*nblocks {
		return nil, fmt.Errorf("zarr: blosc: block offsets truncated")
	}
	tmp := make([]byte, blocksize)
	for j := 0; j < nblocks; j++ {
		bstart := int(int32(binary.LittleEndian.Uint32(src[bloscHeaderSize+4*j:])))
		bsize := blocksize
		lastLeftover := j == nblocks-1 && leftover > 0
		if lastLeftover {
			bsize = leftover
		}
		nstreams := 1
		if flags&bloscFlagDontSplit == 0 && !lastLeftover {
			nstreams = typesize
		}
		neblock := bsize / nstreams

		block := tmp[:bsize]
		pos := bstart
		for s := 0; s < nstreams; s++ {
			if pos < 0 || pos+4 > len(src) {
				return nil, fmt.Errorf("zarr: blosc: block %d stream %d out of bounds", j, s)
			}
			cbytes := int(int32(binary.LittleEndian.Uint32(src[pos:])))
			pos += 4
			if cbytes < 0 || pos+cbytes > len(src) {
				return nil, fmt.Errorf("zarr: blosc: block %d stream %d has invalid length %d", j, s, cbytes)
			}
			dst := block[s*neblock : (s+1)*neblock]
			if cbytes == neblock {
				copy(dst, src[pos:pos+cbytes])
			} else if err := decompress(dst, src[pos:pos+cbytes]); err != nil {
				return nil, fmt.Errorf("zarr: blosc: block %d: %w", j, err)
			}
			pos += cbytes
		}

		dest := out[j*blocksize : j*blocksize+bsize]
		if flags&bloscFlagShuffle != 0 && typesize > 1 {
			unshuffle(dest, block, typesize)
		} else {
			copy(dest, block)
		}
	}
	return out, nil
}

type decompressFunc func(dst, src []byte) error

func bloscDecompressor(code int) (decompressFunc, error) {
	switch code {
	case bloscLZ4:
		return func(dst, src []byte) error {
			n, err := lz4.UncompressBlock(src, dst, nil)
			if err != nil {
				return err
			}
			return expectLen(n, len(dst))
		}, nil
	case bloscSnappy:
		return func(dst, src []byte) error {
			got, err := snappy.Decode(dst, src)
			if err != nil {
				return err
			}
			if err := expectLen(len(got), len(dst)); err != nil {
				return err
			}
			copy(dst, got)
			return nil
		}, nil
	case bloscZlib:
		return func(dst, src []byte) error {
			r, err := zlib.NewReader(bytes.NewReader(src))
			if err != nil {
				return err
			}
			defer r.Close()
			got, err := readSized(r, len(dst), "zlib")
			if err != nil {
				return err
			}
			copy(dst, got)
			return nil
		}, nil
	case bloscZstd:
		return func(dst, src []byte) error {
			got, err := zstdDecoder.DecodeAll(src, dst[:0])
			if err != nil {
				return err
			}
			if err := expectLen(len(got), len(dst)); err != nil {
				return err
			}
			copy(dst, got)
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("zarr: blosc compressor code %d is not supported", code)
	}
}

func expectLen(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: stream decoded to %d bytes, want %d", errSizeMismatch, got, want)
	}
	return nil
}

// unshuffle reverses the byte shuffle of src into dst: byte i of element j
// was stored at src[i*n+j]. Trailing bytes that do not form a whole element
// are stored unshuffled.
func unshuffle(dst, src []byte, typesize int) {
	n := len(src) / typesize
	for i := 0; i < typesize; i++ {
		for j := 0; j < n; j++ {
			dst[j*typesize+i] = src[i*n+j]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}

func shuffle(dst, src []byte, typesize int) {
	n := len(src) / typesize
	for i := 0; i < typesize; i++ {
		for j := 0; j < n; j++ {
			dst[i*n+j] = src[j*typesize+i]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}

func (c bloscCodec) Encode(src []byte, typesize int) ([]byte, error) {
	compress, err := c.compressor()
	if err != nil {
		return nil, err
	}
	if typesize < 1 || typesize > 255 {
		typesize = 1
	}
	nbytes := len(src)
	blocksize := c.blocksize
	if blocksize <= 0 || blocksize > nbytes {
		blocksize = nbytes
	}
	if blocksize >= typesize {
		blocksize -= blocksize % typesize
	}

	flags := byte(c.code << 5)
	shuffled := c.shuffle == 1 && typesize > 1
	if shuffled {
		flags |= bloscFlagShuffle
	}
	split := shuffled && typesize <= bloscMaxSplitTypesize && blocksize >= typesize
	if !split {
		flags |= bloscFlagDontSplit
	}

	header := make([]byte, bloscHeaderSize)
	header[0] = bloscVersionFormat
	header[1] = 1
	header[3] = byte(typesize)
	binary.LittleEndian.PutUint32(header[4:], uint32(nbytes))
	binary.LittleEndian.PutUint32(header[8:], uint32(blocksize))

	if nbytes == 0 {
		binary.LittleEndian.PutUint32(header[12:], bloscHeaderSize)
		header[2] = flags
		return header, nil
	}

	nblocks := nbytes / blocksize
	leftover := nbytes % blocksize
	if leftover > 0 {
		nblocks++
	}
	body := make([]byte, 4*nblocks, 4*nblocks+nbytes)
	scratch := make([]byte, blocksize)
	for j := 0; j < nblocks; j++ {
		binary.LittleEndian.PutUint32(body[4*j:], uint32(bloscHeaderSize+len(body)))
		bsize := blocksize
		lastLeftover := j == nblocks-1 && leftover > 0
		if lastLeftover {
			bsize = leftover
		}
		data := src[j*blocksize : j*blocksize+bsize]
		if shuffled {
			shuffle(scratch[:bsize], data, typesize)
			data = scratch[:bsize]
		}
		nstreams := 1
		if split && !lastLeftover {
			nstreams = typesize
		}
		neblock := bsize / nstreams
		for s := 0; s < nstreams; s++ {
			stream := data[s*neblock : (s+1)*neblock]
			packed, err := compress(stream)
			if err != nil || len(packed) >= neblock {
				packed = stream
			}
			body = binary.LittleEndian.AppendUint32(body, uint32(len(packed)))
			body = append(body, packed...)
		}
	}

	if len(body) >= nbytes {
		header[2] = flags | bloscFlagMemcpyed
		binary.LittleEndian.PutUint32(header[12:], uint32(bloscHeaderSize+nbytes))
		return append(header, src...), nil
	}
	header[2] = flags
	binary.LittleEndian.PutUint32(header[12:], uint32(bloscHeaderSize+len(body)))
	return append(header, body...), nil
}

func (c bloscCodec) compressor() (func([]byte) ([]byte, error), error) {
	switch c.code {
	case bloscLZ4:
		return func(src []byte) ([]byte, error) {
			dst := make([]byte, lz4.CompressBlockBound(len(src)))
			n, err := lz4.CompressBlock(src, dst, nil)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return src, nil
			}
			return dst[:n], nil
		}, nil
	case bloscSnappy:
		return func(src []byte) ([]byte, error) { return snappy.Encode(nil, src), nil }, nil
	case bloscZlib:
		return func(src []byte) ([]byte, error) { return zlibCodec{level: c.clevel}.Encode(src, 1) }, nil
	case bloscZstd:
		return func(src []byte) ([]byte, error) { return zstdEncoder.EncodeAll(src, nil), nil }, nil
	default:
		return nil, fmt.Errorf("zarr: blosc compressor code %d cannot be encoded", c.code)
	}
}
