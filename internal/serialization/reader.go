package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/born-ml/volconv/internal/tensor"
)

type entry struct {
	dtype tensor.DataType
	dims  tensor.Dim4
	span
}

// File is a decoded SafeTensors file held in memory.
type File struct {
	Metadata map[string]string

	entries map[string]entry
	data    []byte
}

// ReadSafeTensors reads and validates the SafeTensors file at path.
func ReadSafeTensors(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for loading volumes
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return DecodeSafeTensors(file)
}

// DecodeSafeTensors reads a SafeTensors stream to its end.
func DecodeSafeTensors(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrHeaderTooLarge, headerSize, MaxHeaderSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	f := &File{entries: make(map[string]entry, len(raw)), data: data}
	spans := make([]span, 0, len(raw))
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		if err := validateName(name); err != nil {
			return nil, err
		}

		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("tensor %q: failed to parse header: %w", name, err)
		}
		e, err := newEntry(name, h)
		if err != nil {
			return nil, err
		}
		f.entries[name] = e
		spans = append(spans, e.span)
	}

	if err := validateSpans(spans, int64(len(data))); err != nil {
		return nil, err
	}
	return f, nil
}

func newEntry(name string, h SafeTensorHeader) (entry, error) {
	dtype, err := dtypeFromSafeTensors(h.DType)
	if err != nil {
		return entry{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	dims, err := dimsOf(h.Shape)
	if err != nil {
		return entry{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	e := entry{
		dtype: dtype,
		dims:  dims,
		span:  span{name: name, begin: h.DataOffsets[0], end: h.DataOffsets[1]},
	}
	if want := int64(dims.Elements()) * int64(dtype.Size()); e.end-e.begin != want {
		return entry{}, &ValidationError{
			Err:     ErrOutOfBounds,
			Tensor:  name,
			Details: fmt.Sprintf("%s%v needs %d bytes, data_offsets cover %d", dtype, h.Shape, want, e.end-e.begin),
		}
	}
	return e, nil
}

// Names lists the tensors in the file in alphabetical order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tensor copies the named tensor into a new CPU tensor.
func (f *File) Tensor(name string) (*tensor.RawTensor, error) {
	e, ok := f.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrTensorNotFound, name, f.Names())
	}
	raw, err := tensor.NewRaw(e.dims, e.dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	copy(raw.Data(), f.data[e.begin:e.end])
	return raw, nil
}

// Only returns the single tensor of a one-tensor file.
func (f *File) Only() (*tensor.RawTensor, error) {
	if len(f.entries) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one tensor, have %v", ErrTensorNotFound, f.Names())
	}
	return f.Tensor(f.Names()[0])
}
