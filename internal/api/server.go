// Package api serves launch plans and convolutions over HTTP.
package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/born-ml/volconv/internal/config"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/tensor"
)

// MaxElements bounds every tensor a convolve request may create.
const MaxElements = 1 << 22

type Server struct {
	cfg      config.Config
	backends *BackendProvider
	log      logger.Logger
}

func NewServer(cfg config.Config, backends *BackendProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if backends == nil {
		backends = NewBackendProvider(cfg, log)
	}
	return &Server{
		cfg:      cfg,
		backends: backends,
		log:      log.WithGroup("api"),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/devices", s.handleDevices)
	e.POST("/v1/plan", s.handlePlan)
	e.POST("/v1/convolve", s.handleConvolve)
}

// Close releases the backends.
func (s *Server) Close() error {
	return s.backends.Close()
}

func (s *Server) handleDevices(c *echo.Context) error {
	profiles := s.cfg.Profiles()
	resp := DevicesResponse{Default: s.cfg.WithDefaults().DefaultDevice}
	for _, name := range s.cfg.DeviceNames() {
		resp.Devices = append(resp.Devices, profiles[name])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePlan(c *echo.Context) error {
	req, err := decodeJSON[PlanRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.plan(req)
	if err != nil {
		return s.writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) plan(req PlanRequest) (PlanResponse, error) {
	dims, err := dims4("dims", req.Dims)
	if err != nil {
		return PlanResponse{}, err
	}
	dev, err := s.cfg.Device(req.Device)
	if err != nil {
		return PlanResponse{}, err
	}
	dtype, err := parseDataType(req.DType)
	if err != nil {
		return PlanResponse{}, err
	}

	ndims := req.NDims
	if ndims == 0 {
		ndims = dims.NDims()
	}
	traffic := launch.IO{Inputs: 1, Outputs: 1, ElementSize: dtype.Size()}
	if req.Inputs != nil {
		traffic.Inputs = *req.Inputs
	}
	if req.Outputs != nil {
		traffic.Outputs = *req.Outputs
	}
	if req.TotalSize != nil {
		traffic.TotalSize = *req.TotalSize
	} else {
		traffic.TotalSize = (traffic.Inputs + traffic.Outputs) * dims.Elements() * traffic.ElementSize
	}

	p, err := launch.New(dims, ndims, dev)
	if err != nil {
		return PlanResponse{}, newInvalidRequest(err.Error())
	}
	geom, err := p.Plan(traffic)
	if err != nil {
		return PlanResponse{}, newInvalidRequest(err.Error())
	}
	return PlanResponse{
		Device:   dev.Name,
		Dims:     dims,
		NDims:    max(ndims, dims.NDims()),
		IO:       traffic,
		Geometry: geom,
		Passes:   geom.Passes(dims),
	}, nil
}

func (s *Server) handleConvolve(c *echo.Context) error {
	req, err := decodeJSON[ConvolveRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.convolve(c, req)
	if err != nil {
		return s.writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) convolve(c *echo.Context, req ConvolveRequest) (ConvolveResponse, error) {
	dtype, err := parseDataType(req.DType)
	if err != nil {
		return ConvolveResponse{}, err
	}
	var p conv.Params
	if p.Stride, err = triple("stride", req.Stride, 1); err != nil {
		return ConvolveResponse{}, err
	}
	if p.Padding, err = triple("padding", req.Padding, 0); err != nil {
		return ConvolveResponse{}, err
	}
	if p.Dilation, err = triple("dilation", req.Dilation, 1); err != nil {
		return ConvolveResponse{}, err
	}

	b, err := s.backends.Backend(req.Backend, req.Device)
	if err != nil {
		return ConvolveResponse{}, err
	}

	signal, err := volumeTensor("signal", req.Signal, dtype)
	if err != nil {
		return ConvolveResponse{}, err
	}
	defer signal.Release()
	filter, err := volumeTensor("filter", req.Filter, dtype)
	if err != nil {
		return ConvolveResponse{}, err
	}
	defer filter.Release()

	if err := checkSize(signal.Dims(), filter.Dims(), p); err != nil {
		return ConvolveResponse{}, err
	}

	out, err := conv.Convolve3(c.Request().Context(), b, signal, filter, p)
	if err != nil {
		return ConvolveResponse{}, err
	}
	defer out.Release()

	name := req.Backend
	if name == "" {
		name = "cpu"
	}
	return ConvolveResponse{
		Backend: name,
		DType:   dtype.String(),
		Dims:    out.Dims(),
		Data:    tensorValues(out),
	}, nil
}

// checkSize rejects requests whose unwrapped intermediate would exceed
// MaxElements.
func checkSize(sd, fd tensor.Dim4, p conv.Params) error {
	od, err := conv.OutputDims(sd, fd, p)
	if err != nil {
		return err
	}
	windows := od[0] * od[1] * od[2]
	if n := windows * sd[3] * fd[0] * fd[1] * fd[2]; n > MaxElements {
		return newInvalidRequest(fmt.Sprintf("unwrapped signal has %d elements, limit is %d", n, MaxElements))
	}
	if n := od.Elements(); n > MaxElements {
		return newInvalidRequest(fmt.Sprintf("output has %d elements, limit is %d", n, MaxElements))
	}
	return nil
}

func (s *Server) writeFailure(c *echo.Context, err error) error {
	if isClientError(err) {
		return writeBadRequest(c, err.Error())
	}
	if isUnavailable(err) {
		return writeError(c, http.StatusServiceUnavailable, "unavailable_error", err.Error())
	}
	s.log.Error("request failed", "path", c.Request().URL.Path, "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
