// Package compress implements the block compression used by binary snapshots.
//
// A block is [uncompressed size uint32][compressed size uint32][data]. A compressed size
// of zero marks a block stored raw, which happens when compression does not pay off.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a compression algorithm. Values are persisted.
type Type uint8

const (
	None Type = 0
	LZ4  Type = 1
	ZSTD Type = 2
)

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd".
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	}
	return None, fmt.Errorf("unknown compression %q", s)
}

// ErrCorrupt is returned for truncated or inconsistent blocks.
var ErrCorrupt = errors.New("corrupt compressed block")

const headerSize = 8

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Checksum returns the CRC32 (IEEE) of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Encode compresses data into a block.
func Encode(data []byte, t Type) ([]byte, error) {
	var packed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression %d", t)
	}

	out := make([]byte, headerSize, headerSize+len(data))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	// raw when compression is not worth it
	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9 {
		binary.LittleEndian.PutUint32(out[4:], 0)
		return append(out, data...), nil
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	return append(out, packed...), nil
}

// Decode reverses Encode.
func Decode(block []byte, t Type) ([]byte, error) {
	if len(block) < headerSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}
	rawSize := binary.LittleEndian.Uint32(block[0:])
	packedSize := binary.LittleEndian.Uint32(block[4:])
	body := block[headerSize:]

	if packedSize == 0 {
		if uint32(len(body)) != rawSize {
			return nil, fmt.Errorf("%w: raw size mismatch", ErrCorrupt)
		}
		return body, nil
	}
	if uint32(len(body)) != packedSize {
		return nil, fmt.Errorf("%w: compressed size mismatch", ErrCorrupt)
	}

	out := make([]byte, rawSize)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: compressed block with compression %s", ErrCorrupt, t)
	}
}
