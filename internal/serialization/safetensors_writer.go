package serialization

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/born-ml/volconv/internal/tensor"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

const metadataKey = "__metadata__"

// WriteSafeTensors writes tensors to a SafeTensors file at path.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for saving volumes
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(file)
	if err := EncodeSafeTensors(w, tensors, metadata); err != nil {
		return err
	}
	return w.Flush()
}

// EncodeSafeTensors writes tensors in SafeTensors layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name and must be
// contiguous.
func EncodeSafeTensors(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	if len(tensors) > MaxTensorCount {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyTensors, len(tensors), MaxTensorCount)
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := validateName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, name := range names {
		raw := tensors[name]
		if !raw.IsLinear() {
			return fmt.Errorf("%w: %q has strides %v", ErrNotContiguous, name, raw.Strides())
		}
		dtype, err := dtypeToSafeTensors(raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
		size := int64(raw.ByteSize())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shapeOf(raw.Dims()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, name := range names {
		raw := tensors[name]
		if _, err := w.Write(raw.Data()[:raw.ByteSize()]); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// shapeOf converts dims to a row-major SafeTensors shape.
func shapeOf(d tensor.Dim4) []int64 {
	n := d.NDims()
	shape := make([]int64, n)
	for i := 0; i < n; i++ {
		shape[n-1-i] = int64(d[i])
	}
	return shape
}

// dimsOf is the inverse of shapeOf.
func dimsOf(shape []int64) (tensor.Dim4, error) {
	if len(shape) > 4 {
		return tensor.Dim4{}, fmt.Errorf("%w: rank %d, volconv tensors have at most 4 axes", tensor.ErrShape, len(shape))
	}
	d := tensor.Dim4{1, 1, 1, 1}
	for i, s := range shape {
		if s <= 0 || s > maxAxis {
			return tensor.Dim4{}, fmt.Errorf("%w: axis length %d", tensor.ErrShape, s)
		}
		d[len(shape)-1-i] = int(s)
	}
	return d, nil
}

var safeTensorsDTypes = map[tensor.DataType]string{
	tensor.Float16:   "F16",
	tensor.Float32:   "F32",
	tensor.Float64:   "F64",
	tensor.Complex64: "C64",
	tensor.Int8:      "I8",
	tensor.Int16:     "I16",
	tensor.Int32:     "I32",
	tensor.Int64:     "I64",
	tensor.Uint8:     "U8",
	tensor.Uint16:    "U16",
	tensor.Uint32:    "U32",
	tensor.Uint64:    "U64",
}

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	if s, ok := safeTensorsDTypes[dt]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
}

func dtypeFromSafeTensors(s string) (tensor.DataType, error) {
	for dt, name := range safeTensorsDTypes {
		if name == s {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
}
