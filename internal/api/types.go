package api

import (
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/tensor"
)

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

type DevicesResponse struct {
	Default string              `json:"default"`
	Devices []device.Capability `json:"devices"`
}

type PlanRequest struct {
	Dims   []int  `json:"dims"`
	NDims  int    `json:"ndims,omitempty"`
	Device string `json:"device,omitempty"`
	DType  string `json:"dtype,omitempty"`

	Inputs  *int `json:"inputs,omitempty"`
	Outputs *int `json:"outputs,omitempty"`
	// TotalSize defaults to (inputs+outputs) buffers of dims elements.
	TotalSize *int `json:"total_size,omitempty"`
}

type PlanResponse struct {
	Device   string          `json:"device"`
	Dims     tensor.Dim4     `json:"dims"`
	NDims    int             `json:"ndims"`
	IO       launch.IO       `json:"io"`
	Geometry launch.Geometry `json:"geometry"`
	Passes   [4]int          `json:"passes"`
}

// Volume is a dense column-major array (axis 0 fastest).
type Volume struct {
	Dims []int     `json:"dims"`
	Data []float64 `json:"data"`
}

type ConvolveRequest struct {
	Backend string `json:"backend,omitempty"` // cpu or grid
	Device  string `json:"device,omitempty"`  // grid backend only
	DType   string `json:"dtype,omitempty"`

	Signal Volume `json:"signal"`
	Filter Volume `json:"filter"`

	Stride   []int `json:"stride,omitempty"`
	Padding  []int `json:"padding,omitempty"`
	Dilation []int `json:"dilation,omitempty"`
}

type ConvolveResponse struct {
	Backend string      `json:"backend"`
	DType   string      `json:"dtype"`
	Dims    tensor.Dim4 `json:"dims"`
	Data    []float64   `json:"data"`
}
