package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length

	maxAxis = 1 << 31
)

// span is the byte range of one tensor inside the data section.
type span struct {
	name       string
	begin, end int64
}

// validateSpans checks for negative, overlapping and out-of-bounds ranges.
// Malformed files could otherwise make one tensor alias another.
func validateSpans(spans []span, dataSize int64) error {
	if len(spans) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(spans), MaxTensorCount),
		}
	}

	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].begin < sorted[j].begin
	})

	for i, s := range sorted {
		if s.begin < 0 || s.end < s.begin {
			return &ValidationError{
				Err:     ErrNegativeOffset,
				Tensor:  s.name,
				Details: fmt.Sprintf("data_offsets [%d, %d]", s.begin, s.end),
			}
		}
		if s.end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("end %d > data_size %d", s.end, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if s.end > next.begin {
				return &ValidationError{
					Err:     ErrOffsetOverlap,
					Tensor:  s.name,
					Tensor2: next.name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", s.begin, s.end, next.begin, next.end),
				}
			}
		}
	}
	return nil
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidTensorName)
	case len(name) > MaxTensorNameLen:
		return fmt.Errorf("%w: name has %d bytes, max %d", ErrInvalidTensorName, len(name), MaxTensorNameLen)
	case name == metadataKey:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidTensorName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: name contains NUL", ErrInvalidTensorName)
	}
	return nil
}
