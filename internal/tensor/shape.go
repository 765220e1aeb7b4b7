package tensor

import "fmt"

// Dim4 holds the element count of each of the four axes.
// Axis 0 is the fastest varying axis in memory.
type Dim4 [4]int

// Elements returns the total number of elements.
func (d Dim4) Elements() int {
	return d[0] * d[1] * d[2] * d[3]
}

// NDims returns the number of axes up to and including the last one
// whose extent is not 1. A single element counts as 1 dimension.
func (d Dim4) NDims() int {
	for i := 3; i > 0; i-- {
		if d[i] != 1 {
			return i + 1
		}
	}
	return 1
}

// Validate checks that every axis is positive.
func (d Dim4) Validate() error {
	for i, dim := range d {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension %d is %d (must be > 0)", ErrShape, i, dim)
		}
	}
	return nil
}

// Strides returns the contiguous strides for the dims.
// stride[0] is always 1 and stride[i] = stride[i-1] * d[i-1].
func (d Dim4) Strides() Dim4 {
	return Dim4{1, d[0], d[0] * d[1], d[0] * d[1] * d[2]}
}

// Permute returns the dims reordered so that result[i] = d[perm[i]].
func (d Dim4) Permute(perm [4]int) Dim4 {
	return Dim4{d[perm[0]], d[perm[1]], d[perm[2]], d[perm[3]]}
}

// String formats the dims as "[d0 d1 d2 d3]".
func (d Dim4) String() string {
	return fmt.Sprintf("[%d %d %d %d]", d[0], d[1], d[2], d[3])
}

// ValidatePermutation checks that perm is a permutation of 0..3.
func ValidatePermutation(perm [4]int) error {
	var seen [4]bool
	for _, ax := range perm {
		if ax < 0 || ax > 3 {
			return fmt.Errorf("%w: invalid axis %d in permutation %v", ErrShape, ax, perm)
		}
		if seen[ax] {
			return fmt.Errorf("%w: duplicate axis %d in permutation %v", ErrShape, ax, perm)
		}
		seen[ax] = true
	}
	return nil
}
