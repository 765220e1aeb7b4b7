// Package serialization stores volumes and filters in SafeTensors files.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON object, name -> {dtype, shape, data_offsets}]
//	  [Tensor data: raw little-endian bytes]
//
// SafeTensors shapes are row-major (last axis fastest) while volconv
// tensors keep axis 0 fastest. Shapes are therefore written reversed, with
// trailing unit axes dropped, which leaves the bytes untouched: a volume of
// dims (W, H, D, 1) is stored as shape [D, H, W].
//
// Example usage:
//
//	err := serialization.WriteSafeTensors("volume.safetensors",
//	    map[string]*tensor.RawTensor{"signal": vol}, nil)
//
//	f, err := serialization.ReadSafeTensors("volume.safetensors")
//	signal, err := f.Tensor("signal")
package serialization
