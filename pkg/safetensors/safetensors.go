// Package safetensors reads checkpoint files in the safetensors format.
//
// A safetensors file is laid out as:
//
//	[8 bytes]  little-endian uint64 N, the header length
//	[N bytes]  JSON header: {"<name>": {"dtype", "shape", "data_offsets"}, "__metadata__": {...}}
//	[...]      tensor byte buffer; data_offsets are relative to its start
//
// Tensors are read lazily through an io.ReaderAt, so opening a multi-GB
// checkpoint only costs the header.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"
)

// maxHeaderSize bounds the JSON header to reject corrupt length prefixes.
const maxHeaderSize = 100 << 20

const metadataKey = "__metadata__"

// ErrNotFound is returned when a tensor name is not in the file.
var ErrNotFound = errors.New("safetensors: tensor not found")

// DType is a tensor element type as spelled in the header.
type DType string

// Element types.
const (
	F64  DType = "F64"
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
	I64  DType = "I64"
	I32  DType = "I32"
	I16  DType = "I16"
	I8   DType = "I8"
	U8   DType = "U8"
	Bool DType = "BOOL"
)

// Size returns the element size in bytes, or 0 for unknown types.
func (d DType) Size() int {
	switch d {
	case F64, I64:
		return 8
	case F32, I32:
		return 4
	case F16, BF16, I16:
		return 2
	case I8, U8, Bool:
		return 1
	}
	return 0
}

// TensorInfo describes one tensor entry of the header.
type TensorInfo struct {
	Name        string   `json:"-"`
	DType       DType    `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// NumElements returns the product of the shape. Scalars have one element.
func (t *TensorInfo) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ByteLen returns the size of the tensor data in bytes.
func (t *TensorInfo) ByteLen() int64 {
	return t.DataOffsets[1] - t.DataOffsets[0]
}

// File is a parsed safetensors checkpoint.
type File struct {
	r        io.ReaderAt
	closer   io.Closer
	dataBase int64
	tensors  map[string]*TensorInfo
	names    []string
	metadata map[string]string
}

// Open opens and parses the checkpoint at path. Close releases the file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	sf, err := Parse(f, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors: %s: %w", path, err)
	}
	sf.closer = f
	return sf, nil
}

// Parse reads the header of a checkpoint of the given total size.
func Parse(r io.ReaderAt, size int64) (*File, error) {
	var prefix [8]byte
	if _, err := r.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	n := binary.LittleEndian.Uint64(prefix[:])
	if n == 0 || n > maxHeaderSize || int64(n) > size-8 {
		return nil, fmt.Errorf("invalid header length %d", n)
	}

	header := make([]byte, n)
	if _, err := r.ReadAt(header, 8); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	f := &File{
		r:        r,
		dataBase: 8 + int64(n),
		tensors:  make(map[string]*TensorInfo, len(raw)),
	}
	dataLen := size - f.dataBase
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
			continue
		}
		info := &TensorInfo{Name: name}
		if err := json.Unmarshal(msg, info); err != nil {
			return nil, fmt.Errorf("decode tensor %q: %w", name, err)
		}
		if err := info.validate(dataLen); err != nil {
			return nil, err
		}
		f.tensors[name] = info
		f.names = append(f.names, name)
	}
	sort.Strings(f.names)
	return f, nil
}

func (t *TensorInfo) validate(dataLen int64) error {
	begin, end := t.DataOffsets[0], t.DataOffsets[1]
	if begin < 0 || end < begin || end > dataLen {
		return fmt.Errorf("tensor %q: data offsets [%d, %d] out of range", t.Name, begin, end)
	}
	if size := t.DType.Size(); size > 0 {
		if want := t.NumElements() * int64(size); want != end-begin {
			return fmt.Errorf("tensor %q: %d bytes for shape %v of %s, want %d", t.Name, end-begin, t.Shape, t.DType, want)
		}
	}
	return nil
}

// Close releases the underlying file when opened with Open.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

// Names returns the tensor names in lexical order.
func (f *File) Names() []string {
	return append([]string(nil), f.names...)
}

// Len returns the number of tensors.
func (f *File) Len() int {
	return len(f.names)
}

// Metadata returns the free-form "__metadata__" map, or nil.
func (f *File) Metadata() map[string]string {
	return f.metadata
}

// Info returns the header entry for name.
func (f *File) Info(name string) (*TensorInfo, error) {
	info, ok := f.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return info, nil
}

// Bytes returns a copy of the raw little-endian data of a tensor.
func (f *File) Bytes(name string) ([]byte, error) {
	info, err := f.Info(name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.ByteLen())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := f.r.ReadAt(buf, f.dataBase+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("safetensors: read %q: %w", name, err)
	}
	return buf, nil
}

// Float32 returns the tensor converted to float32. Floating point dtypes
// are supported; integer tensors (e.g., BatchNorm counters) are rejected.
func (f *File) Float32(name string) ([]float32, error) {
	info, err := f.Info(name)
	if err != nil {
		return nil, err
	}
	b, err := f.Bytes(name)
	if err != nil {
		return nil, err
	}
	n := int(info.NumElements())
	out := make([]float32, n)
	switch info.DType {
	case F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case F64:
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:])))
		}
	case F16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
	case BF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(b[2*i:])) << 16)
		}
	default:
		return nil, fmt.Errorf("safetensors: %q: cannot convert %s to float32", name, info.DType)
	}
	return out, nil
}
