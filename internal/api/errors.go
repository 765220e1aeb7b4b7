package api

import (
	"errors"

	"github.com/born-ml/volconv/internal/backend/webgpu"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// isClientError reports whether err was caused by the request rather than
// the server.
func isClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		unwrap.ErrInvalidWindow,
		conv.ErrShapeMismatch,
		conv.ErrUnsupportedType,
		device.ErrUnknownDevice,
		device.ErrInvalidCapability,
		tensor.ErrShape,
		launch.ErrGeometry,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isUnavailable reports whether err comes from a backend the server cannot
// open on this host.
func isUnavailable(err error) bool {
	return errors.Is(err, webgpu.ErrUnavailable)
}
