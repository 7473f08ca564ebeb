package simulator

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelab/opticalign/pkg/payload"
	"github.com/atelab/opticalign/pkg/stream"
)

func startSimulator(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sim := New(Options{FrameInterval: 10 * time.Millisecond, Width: 40, Height: 30})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)
	return sim, srv
}

func TestRESTSurface(t *testing.T) {
	sim, srv := startSimulator(t)
	c := payload.NewClient(srv.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, c.ControlCompositeDevice(ctx, "blackBody", 20000))
	assert.Equal(t, 20000, sim.DeviceValue("blackBody"))

	require.NoError(t, c.SetDeviceValue(ctx, payload.EndpointSetVisibleLight, "light", 250))
	assert.Equal(t, 250, sim.DeviceValue("visibleLight"))

	assert.ErrorIs(t, c.ControlCompositeDevice(ctx, "projector", 1), payload.ErrRejected)

	sim.Fail(payload.EndpointCompositeDeviceControl, true)
	assert.ErrorIs(t, c.ControlCompositeDevice(ctx, "indicationLaser", 500), payload.ErrRejected)
	sim.Fail(payload.EndpointCompositeDeviceControl, false)

	require.NoError(t, c.ControlPulsedLaser(ctx, payload.PulsedLaserRequest{Power: 20, Operation: "toggle"}))
	temp, err := c.PulsedLaserTemperature(ctx)
	require.NoError(t, err)
	assert.Greater(t, temp, 20.0)

	status, err := c.DevicesStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status["pulsedLaser"])

	assert.Equal(t, []string{
		"composite blackBody 20000",
		"legacy visibleLight 250",
		"composite projector 1",
		"composite indicationLaser 500",
		"pulsed toggle",
	}, sim.Calls())
}

func TestCameraStreaming(t *testing.T) {
	sim, srv := startSimulator(t)
	tr := stream.NewWebsocketTransport("ws" + strings.TrimPrefix(srv.URL, "http") + "/camera")
	ch := stream.NewChannel(tr, time.Second, time.Second, nil)
	ctx := context.Background()

	require.NoError(t, ch.StartStream(ctx, stream.SWIR))
	require.Eventually(t, func() bool {
		s, _ := ch.Camera(stream.SWIR)
		return s.ImageSize.Valid() && s.Centroid.Success
	}, 2*time.Second, 5*time.Millisecond)

	s, err := ch.Camera(stream.SWIR)
	require.NoError(t, err)
	assert.Equal(t, stream.ImageSize{Width: 40, Height: 30}, s.ImageSize)
	assert.InDelta(t, 20, s.Centroid.X, 6)
	assert.InDelta(t, 15, s.Centroid.Y, 5)

	require.NoError(t, ch.SetAlgorithm(ctx, stream.SWIR, "gaussian"))
	require.Eventually(t, func() bool {
		s, _ := ch.Camera(stream.SWIR)
		return s.Centroid.Algorithm == "gaussian"
	}, 2*time.Second, 5*time.Millisecond)

	sim.Fail(stream.TypeStartStream, true)
	assert.ErrorIs(t, ch.StartStream(ctx, stream.Pod), stream.ErrStreamStartFailed)

	require.NoError(t, ch.Close(ctx))
	require.Eventually(t, func() bool {
		calls := sim.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "disconnect"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"start_stream swir",
		"set_algorithm swir",
		"start_stream pod",
		"stop_stream swir",
		"disconnect",
	}, sim.Calls())
}

func TestRenderFrame(t *testing.T) {
	data, c, err := renderFrame(32, 24, 0, cameraState{algorithm: "gray", crosshair: true, centroid: true})
	require.NoError(t, err)
	size, err := stream.DecodeImageSize(data)
	require.NoError(t, err)
	assert.Equal(t, stream.ImageSize{Width: 32, Height: 24}, size)
	assert.Equal(t, 20.0, c.X)
	assert.Equal(t, 12.0, c.Y)
	assert.Equal(t, "gray", c.Algorithm)
}
