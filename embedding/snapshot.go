package embedding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hupe1980/pagecorpus/internal/compress"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

// Snapshot file layout:
//
//	magic "PCEV" | format u8 | compression u8 | reserved u16 | crc32(payload) u32 | block
//
// The block holds the payload, compressed with internal/compress:
//
//	model (u16 len + bytes) | dim u32 | count u32 |
//	count × ( id (u16 len + bytes) | label (u16 len + bytes) | version u32 | seq u64 | dim × f32 )
//
// All integers are little endian.
const (
	snapshotMagic   = "PCEV"
	snapshotFormat  = 1
	snapshotHdrSize = 12
	// SnapshotExt is the file extension of embedding snapshots.
	SnapshotExt = ".vec"
)

// SnapshotPath returns <versionDir>/embeddings/<model>.vec.
func SnapshotPath(versionDir, modelName string) string {
	return filepath.Join(versionDir, "embeddings", label.SafeName(modelName)+SnapshotExt)
}

// Save writes the store to path atomically.
func (s *Store) Save(fsys fs.FileSystem, path string, c compress.Type) error {
	if fsys == nil {
		fsys = fs.Default
	}
	payload, err := s.encode()
	if err != nil {
		return err
	}
	block, err := compress.Encode(payload, c)
	if err != nil {
		return err
	}

	hdr := make([]byte, snapshotHdrSize)
	copy(hdr, snapshotMagic)
	hdr[4] = snapshotFormat
	hdr[5] = byte(c)
	binary.LittleEndian.PutUint32(hdr[8:], compress.Checksum(payload))

	return fs.WriteAtomic(fsys, path, 0o644, func(w io.Writer) error {
		if _, err := w.Write(hdr); err != nil {
			return err
		}
		_, err := w.Write(block)
		return err
	})
}

// LoadStore reads a snapshot written by Save.
func LoadStore(fsys fs.FileSystem, path string) (*Store, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	if len(data) < snapshotHdrSize || string(data[:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}
	if data[4] != snapshotFormat {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrCorruptSnapshot, data[4])
	}
	want := binary.LittleEndian.Uint32(data[8:])
	payload, err := compress.Decode(data[snapshotHdrSize:], compress.Type(data[5]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if got := compress.Checksum(payload); got != want {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorruptSnapshot, got, want)
	}
	return decode(payload)
}

// LoadOrNew loads the snapshot at path, or returns an empty store when it does not exist.
func LoadOrNew(fsys fs.FileSystem, path, modelName string, dim int) (*Store, error) {
	s, err := LoadStore(fsys, path)
	if errors.Is(err, os.ErrNotExist) {
		return NewStore(modelName, dim), nil
	}
	return s, err
}

func (s *Store) encode() ([]byte, error) {
	entries := s.Entries()
	var buf bytes.Buffer
	if err := writeString(&buf, s.model); err != nil {
		return nil, err
	}
	dim := s.Dim()
	writeU32(&buf, uint32(dim))
	writeU32(&buf, uint32(len(entries)))
	for _, e := range entries {
		if err := writeString(&buf, string(e.ID)); err != nil {
			return nil, err
		}
		if err := writeString(&buf, e.Label); err != nil {
			return nil, err
		}
		writeU32(&buf, uint32(e.Version))
		var seq [8]byte
		binary.LittleEndian.PutUint64(seq[:], e.Seq)
		buf.Write(seq[:])
		for _, v := range e.Vector {
			writeU32(&buf, math.Float32bits(v))
		}
	}
	return buf.Bytes(), nil
}

func decode(payload []byte) (*Store, error) {
	r := &reader{buf: payload}
	modelName := r.str()
	dim := int(r.u32())
	count := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if count > 0 && dim == 0 {
		return nil, fmt.Errorf("%w: entries without dimension", ErrCorruptSnapshot)
	}

	s := NewStore(modelName, dim)
	for i := 0; i < count; i++ {
		e := Entry{
			ID:      model.PageID(r.str()),
			Label:   r.str(),
			Version: model.Version(r.u32()),
			Seq:     r.u64(),
		}
		e.Vector = make([]float32, dim)
		for j := range e.Vector {
			e.Vector[j] = math.Float32frombits(r.u32())
		}
		if r.err != nil {
			return nil, r.err
		}
		if err := s.Put(e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	if len(r.buf) != r.pos {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, len(r.buf)-r.pos)
	}
	return s, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long for snapshot: %d bytes", len(s))
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
	return nil
}

type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("%w: truncated payload", ErrCorruptSnapshot)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) str() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(b))
	return string(r.take(n))
}
