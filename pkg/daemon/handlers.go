package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/client"
	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/device"
	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/laser"
	"github.com/atelab/opticalign/pkg/payload"
	"github.com/atelab/opticalign/pkg/procedure"
	"github.com/atelab/opticalign/pkg/records"
	"github.com/atelab/opticalign/pkg/stream"
	"github.com/atelab/opticalign/pkg/version"
)

var (
	errNoFrame          = errors.New("no frame received yet")
	errNoRecordDatabase = errors.New("no record database configured")
)

// statusFor maps a session error to the HTTP status the client sees.
func statusFor(err error) int {
	switch {
	case errors.Is(err, stream.ErrUnknownCamera),
		errors.Is(err, device.ErrUnknownKind),
		errors.Is(err, procedure.ErrRecordNotFound),
		errors.Is(err, errNoFrame),
		errors.Is(err, errNoRecordDatabase):
		return http.StatusNotFound
	case errors.Is(err, procedure.ErrInvalidAxis),
		errors.Is(err, stream.ErrUnknownAlgorithm),
		errors.Is(err, stream.ErrUnknownOverlay),
		errors.Is(err, device.ErrValueOutOfRange),
		errors.Is(err, laser.ErrUnknownOperation):
		return http.StatusBadRequest
	case errors.Is(err, procedure.ErrRecordCompleted),
		errors.Is(err, stream.ErrNotStreaming):
		return http.StatusConflict
	case errors.Is(err, stream.ErrConnectTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, stream.ErrNotConnected),
		errors.Is(err, stream.ErrCommandRejected),
		errors.Is(err, stream.ErrStreamStartFailed),
		errors.Is(err, stream.ErrStreamStopFailed),
		errors.Is(err, device.ErrDeviceControlFailed),
		errors.Is(err, laser.ErrControlFailed),
		errors.Is(err, laser.ErrPollingFetchFailed),
		errors.Is(err, payload.ErrUnreachable),
		errors.Is(err, payload.ErrRejected),
		errors.Is(err, payload.ErrUnexpectedStatus):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	status := statusFor(err)
	c.IndentedJSON(status, err.Error())
	_ = c.AbortWithError(status, err)
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

// bindOptional decodes a JSON body if there is one.
func bindOptional(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *server) getConfig(c *gin.Context) {
	raw, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, raw)
}

func (s *server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Snapshot())
}

func (s *server) nextStep(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Advance(c.Request.Context()))
}

func (s *server) prevStep(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Retreat(c.Request.Context()))
}

func (s *server) setAxis(c *gin.Context) {
	var req client.AxisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	axis, err := procedure.ParseAxis(req.Type, req.Spectrum)
	if err != nil {
		abort(c, err)
		return
	}
	change, err := s.session.SetAxis(c.Request.Context(), axis)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, change)
}

func cameraParam(c *gin.Context) (stream.CameraID, bool) {
	id, err := stream.ParseCameraID(c.Param("id"))
	if err != nil {
		abort(c, err)
		return "", false
	}
	return id, true
}

// cameraResult answers a camera command with the resulting camera state.
func (s *server) cameraResult(c *gin.Context, id stream.CameraID, err error) {
	status := http.StatusOK
	resp := client.CameraResponse{}
	switch {
	case errors.Is(err, stream.ErrOverlayNotForwarded):
		status = http.StatusAccepted
		resp.Warning = err.Error()
	case err != nil:
		abort(c, err)
		return
	}
	resp.Camera, _ = s.session.Camera(id)
	c.IndentedJSON(status, resp)
}

func (s *server) getCamera(c *gin.Context) {
	id, ok := cameraParam(c)
	if !ok {
		return
	}
	snap, err := s.session.Camera(id)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, snap)
}

func (s *server) getFrame(c *gin.Context) {
	id, ok := cameraParam(c)
	if !ok {
		return
	}
	snap, err := s.session.Camera(id)
	if err != nil {
		abort(c, err)
		return
	}
	if len(snap.Frame) == 0 {
		abort(c, errNoFrame)
		return
	}
	c.Header("X-Frame-Seq", strconv.FormatUint(snap.FrameSeq, 10))
	c.Data(http.StatusOK, http.DetectContentType(snap.Frame), snap.Frame)
}

func (s *server) startStream(c *gin.Context) {
	id, ok := cameraParam(c)
	if !ok {
		return
	}
	s.cameraResult(c, id, s.session.StartStream(c.Request.Context(), id))
}

func (s *server) stopStream(c *gin.Context) {
	id, ok := cameraParam(c)
	if !ok {
		return
	}
	s.cameraResult(c, id, s.session.StopStream(c.Request.Context(), id))
}

func (s *server) setAlgorithm(c *gin.Context) {
	id, ok := cameraParam(c)
	if !ok {
		return
	}
	var req client.AlgorithmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.cameraResult(c, id, s.session.SetAlgorithm(c.Request.Context(), id, req.Algorithm))
}

func (s *server) setOverlay(c *gin.Context) {
	id, ok := cameraParam(c)
	if !ok {
		return
	}
	var req client.OverlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	kind, err := stream.ParseOverlayKind(req.Kind)
	if err != nil {
		abort(c, err)
		return
	}
	s.cameraResult(c, id, s.session.SetOverlay(c.Request.Context(), id, kind, req.Enabled))
}

func (s *server) controlDevice(c *gin.Context) {
	kind, err := device.ParseKind(c.Param("kind"))
	if err != nil {
		abort(c, err)
		return
	}
	var req client.DeviceRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := s.session.ControlDevice(c.Request.Context(), kind, req.Value)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *server) getPayloadDevices(c *gin.Context) {
	status, err := s.payload.DevicesStatus(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, status)
}

func (s *server) controlPulsedLaser(c *gin.Context) {
	var req client.PulsedLaserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	op, err := laser.ParseOperation(req.Operation)
	if err != nil {
		abort(c, err)
		return
	}

	p := s.session.PulsedLaser().Params
	if req.Power != nil {
		p.Power = *req.Power
	}
	if req.FrequencyHz != nil {
		p.FrequencyHz = *req.FrequencyHz
	}
	if req.PulseWidthNs != nil {
		p.PulseWidthNs = *req.PulseWidthNs
	}

	st, err := s.session.ControlPulsedLaser(c.Request.Context(), p, op)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *server) getPulsedLaserTemperature(c *gin.Context) {
	t, err := s.session.PulsedLaserTemperature(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, client.TemperatureResponse{TemperatureC: t})
}

func (s *server) getTemperatureHistory(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.TemperatureHistory())
}

func (s *server) getRecords(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Records())
}

func (s *server) addRecord(c *gin.Context) {
	c.IndentedJSON(http.StatusCreated, s.session.AddRecord(c.Request.Context()))
}

func (s *server) completeRecord(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, err)
		return
	}
	r, err := s.session.CompleteRecord(c.Request.Context(), index)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, r)
}

func (s *server) getRecordHistory(c *gin.Context) {
	if s.store == nil {
		abort(c, errNoRecordDatabase)
		return
	}
	rs, err := s.store.List(c.Request.Context(), c.Query("session"))
	if err != nil {
		abort(c, err)
		return
	}
	if rs == nil {
		rs = []records.Record{}
	}
	c.IndentedJSON(http.StatusOK, rs)
}

// streamEvents relays hub events as server-sent events until the client
// goes away or the hub is closed. Frame events are opt-in with frames=1.
func (s *server) streamEvents(c *gin.Context) {
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	frames := c.Query("frames") == "1"
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	logrus.Debug("event subscriber connected")
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			if ev.Name == events.FrameArrived && !frames {
				return true
			}
			c.SSEvent(ev.Name, ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	logrus.Debug("event subscriber disconnected")
}
