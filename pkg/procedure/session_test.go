package procedure

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/device"
	"github.com/atelab/opticalign/pkg/laser"
	"github.com/atelab/opticalign/pkg/payload"
	"github.com/atelab/opticalign/pkg/records"
	"github.com/atelab/opticalign/pkg/simulator"
	"github.com/atelab/opticalign/pkg/stream"
	"github.com/atelab/opticalign/pkg/utils/ptr"
)

func newTestSession(t *testing.T) (*Session, *simulator.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sim := simulator.New(simulator.Options{FrameInterval: 10 * time.Millisecond, Width: 64, Height: 48})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	cfg := config.NewFileFromConfig(&config.RawFileConfig{
		PayloadURL:                     ptr.To(srv.URL),
		StreamURL:                      ptr.To("ws" + strings.TrimPrefix(srv.URL, "http") + "/camera"),
		TemperaturePollIntervalSeconds: ptr.To(1),
	}, "")
	remote := payload.NewClient(cfg.PayloadURL(), cfg.CommandTimeout())
	channel := stream.NewChannel(stream.NewWebsocketTransport(cfg.StreamURL()), cfg.ConnectTimeout(), cfg.CommandTimeout(), nil)
	s := NewSession(cfg, remote, channel, nil, nil)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, sim
}

func TestSessionStartStreamScenario(t *testing.T) {
	s, _ := newTestSession(t)
	require.False(t, s.Snapshot().Connected)

	require.NoError(t, s.StartStream(context.Background(), stream.Pod))

	snap := s.Snapshot()
	assert.True(t, snap.Connected)
	pod, err := s.Camera(stream.Pod)
	require.NoError(t, err)
	assert.True(t, pod.Streaming)
}

func TestSessionBlackBodyScenario(t *testing.T) {
	s, sim := newTestSession(t)

	st, err := s.ControlDevice(context.Background(), device.BlackBody, nil)
	require.NoError(t, err)
	assert.True(t, st.On)
	assert.Equal(t, 20000, st.Value)
	assert.Equal(t, []string{"composite blackBody 20000"}, sim.Calls())
}

func TestSessionCoarseAlignmentTeardownOrder(t *testing.T) {
	s, sim := newTestSession(t)
	ctx := context.Background()

	s.Advance(ctx) // 2
	require.NoError(t, s.StartStream(ctx, stream.Pod))
	_, err := s.ControlDevice(ctx, device.IndicationLaser, nil)
	require.NoError(t, err)

	tr := s.Advance(ctx)
	require.Empty(t, tr.TeardownErrors)
	assert.Equal(t, StepReferenceSetup, s.Snapshot().Step)
	assert.Equal(t, []string{
		"start_stream pod",
		"composite indicationLaser 500",
		"stop_stream pod",
		"composite indicationLaser 0",
	}, sim.Calls())
}

func TestSessionCompleteRecordUsesReferenceCamera(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SetAxis(ctx, ReferenceAxis{Receive, SpectrumIR})
	require.NoError(t, err)
	require.NoError(t, s.StartStream(ctx, stream.IR))
	require.Eventually(t, func() bool {
		c, _ := s.Camera(stream.IR)
		return c.Centroid.Success && c.ImageSize.Valid()
	}, 2*time.Second, 5*time.Millisecond)

	s.AddRecord(ctx)
	r, err := s.CompleteRecord(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, r.Result)
	// The simulated spot orbits the center at w/8 and h/8.
	assert.InDelta(t, 0, r.Result.X, 8.5)
	assert.InDelta(t, 0, r.Result.Y, 6.5)

	_, err = s.CompleteRecord(ctx, 1)
	assert.ErrorIs(t, err, ErrRecordCompleted)
}

func TestSessionPulsedLaserCommitsOnSuccess(t *testing.T) {
	s, sim := newTestSession(t)
	ctx := context.Background()

	p := laser.Params{Power: 30, FrequencyHz: 15000, PulseWidthNs: 8}
	st, err := s.ControlPulsedLaser(ctx, p, laser.OpFrequency)
	require.NoError(t, err)
	assert.Equal(t, p, st.Params)
	assert.Equal(t, "15.0 kHz", st.Frequency)
	assert.False(t, st.On)

	sim.Fail(payload.EndpointPulsedLaserControl, true)
	_, err = s.ControlPulsedLaser(ctx, laser.Params{Power: 90}, laser.OpPower)
	assert.ErrorIs(t, err, laser.ErrControlFailed)
	assert.Equal(t, p, s.Snapshot().PulsedLaser.Params, "a failed control does not commit")
}

func TestSessionPollingOnLaserAxis(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SetAxis(ctx, ReferenceAxis{Transmit, SpectrumLaser})
	require.NoError(t, err)
	s.Advance(ctx)
	s.Advance(ctx) // 3
	assert.True(t, s.Snapshot().PulsedLaser.Polling)
	require.Eventually(t, func() bool { return len(s.TemperatureHistory()) > 0 }, 2*time.Second, 10*time.Millisecond)

	s.Retreat(ctx) // 2
	assert.False(t, s.Snapshot().PulsedLaser.Polling)
}

func TestSessionClose(t *testing.T) {
	s, sim := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.StartStream(ctx, stream.Pod))
	require.NoError(t, s.StartStream(ctx, stream.Reference))
	_, err := s.SetAxis(ctx, ReferenceAxis{Transmit, SpectrumLaser})
	require.NoError(t, err)
	require.NoError(t, s.StartStream(ctx, stream.SWIR))
	s.Advance(ctx)
	s.Advance(ctx)
	s.laser.StartPolling()

	sim.Fail(payload.EndpointCompositeDeviceControl, true)
	require.NoError(t, s.Close(ctx), "a failing laser call does not fail the close")

	snap := s.Snapshot()
	assert.False(t, snap.Connected)
	assert.False(t, snap.PulsedLaser.Polling)
	for _, c := range snap.Cameras {
		assert.False(t, c.Streaming, c.Camera)
	}

	calls := sim.Calls()
	last := calls[len(calls)-1]
	if last == "disconnect" {
		calls = calls[:len(calls)-1]
		last = calls[len(calls)-1]
	}
	assert.Equal(t, "composite indicationLaser 0", last, "the laser is forced off after the streams stop")
	assert.Contains(t, calls, "stop_stream swir")
}

func TestSessionWithRecordStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sim := simulator.New(simulator.DefaultOptions)
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	db, err := records.NewDB(t.TempDir() + "/records.db")
	require.NoError(t, err)
	defer db.Close()

	cfg := config.NewFileFromConfig(&config.RawFileConfig{PayloadURL: ptr.To(srv.URL)}, "")
	channel := stream.NewChannel(stream.NewWebsocketTransport("ws"+strings.TrimPrefix(srv.URL, "http")+"/camera"), time.Second, time.Second, nil)
	s := NewSession(cfg, payload.NewClient(srv.URL, time.Second), channel, db, nil)
	defer s.Close(context.Background())

	s.AddRecord(context.Background())
	_, err = s.CompleteRecord(context.Background(), 1)
	require.NoError(t, err)

	rows, err := db.List(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, records.StatusCompleted, rows[0].Status)
	assert.Equal(t, 0.0, *rows[0].XDeviation, "no centroid means zero deviation")
}
