package laser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/payload"
)

type fakeRemote struct {
	mu       sync.Mutex
	requests []payload.PulsedLaserRequest
	err      error
	tempErr  error
	temp     float64
	fetches  atomic.Int32
}

func (f *fakeRemote) ControlPulsedLaser(_ context.Context, req payload.PulsedLaserRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeRemote) PulsedLaserTemperature(_ context.Context) (float64, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temp, f.tempErr
}

func TestControlToggleFlips(t *testing.T) {
	remote := &fakeRemote{}
	c := NewController(remote, time.Hour, time.Second, nil)
	p := Params{Power: 40, FrequencyHz: 15000, PulseWidthNs: 10}

	require.NoError(t, c.Control(context.Background(), p, OpToggle))
	assert.True(t, c.State().On)
	require.Len(t, remote.requests, 1)
	assert.Equal(t, payload.PulsedLaserRequest{Power: 40, Frequency: 15000, PulseWidth: 10, Operation: "toggle"}, remote.requests[0])

	require.NoError(t, c.Control(context.Background(), p, OpToggle))
	assert.False(t, c.State().On)
}

func TestControlParameterDoesNotMutate(t *testing.T) {
	remote := &fakeRemote{}
	c := NewController(remote, time.Hour, time.Second, nil)

	require.NoError(t, c.Control(context.Background(), Params{Power: 80}, OpPower))
	st := c.State()
	assert.False(t, st.On)
	assert.Zero(t, st.Power, "parameters are committed by the caller")

	c.SetParams(Params{Power: 80, FrequencyHz: 2e6})
	assert.Equal(t, "2.0 MHz", c.State().Frequency)
}

func TestControlFailure(t *testing.T) {
	remote := &fakeRemote{err: payload.ErrRejected}
	c := NewController(remote, time.Hour, time.Second, nil)

	err := c.Control(context.Background(), Params{}, OpToggle)
	assert.True(t, errors.Is(err, ErrControlFailed))
	assert.True(t, errors.Is(err, payload.ErrRejected))
	assert.False(t, c.State().On)
}

func TestControlUnknownOperation(t *testing.T) {
	remote := &fakeRemote{}
	c := NewController(remote, time.Hour, time.Second, nil)
	assert.True(t, errors.Is(c.Control(context.Background(), Params{}, Operation("fire")), ErrUnknownOperation))
	assert.Empty(t, remote.requests)
}

func TestPollingFetchesImmediatelyAndRepeats(t *testing.T) {
	remote := &fakeRemote{temp: 31.5}
	c := NewController(remote, 20*time.Millisecond, time.Second, nil)

	c.StartPolling()
	defer c.StopPolling()

	require.Eventually(t, func() bool { return remote.fetches.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 31.5, c.State().TemperatureC, 1e-9)
	assert.NotEmpty(t, c.History())
}

func TestPollingSurvivesFetchFailure(t *testing.T) {
	hub := events.NewEventHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	remote := &fakeRemote{tempErr: payload.ErrUnreachable}
	c := NewController(remote, 10*time.Millisecond, time.Second, hub)
	c.StartPolling()
	defer c.StopPolling()

	require.Eventually(t, func() bool { return remote.fetches.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, c.Polling())

	select {
	case ev := <-sub:
		n, err := events.DecodeAs[events.Notice](ev)
		require.NoError(t, err)
		assert.Equal(t, events.LevelWarning, n.Level)
	case <-time.After(time.Second):
		t.Fatal("expected a warning notice")
	}
}

func TestStopPollingIsIdempotent(t *testing.T) {
	remote := &fakeRemote{}
	c := NewController(remote, 10*time.Millisecond, time.Second, nil)
	c.StopPolling()

	c.StartPolling()
	c.StartPolling()
	c.StopPolling()
	c.StopPolling()
	assert.False(t, c.Polling())

	n := remote.fetches.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, remote.fetches.Load(), "no fetch may happen after StopPolling")
}

func TestTemperatureRecorderCap(t *testing.T) {
	r := NewTemperatureRecorder(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		r.Add(now.Add(time.Duration(i)*time.Second), float64(i))
	}
	s := r.Samples()
	require.Len(t, s, 3)
	assert.Equal(t, 2.0, s[0].TemperatureC)
	last, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, 4.0, last.TemperatureC)

	r.Clear()
	_, ok = r.Latest()
	assert.False(t, ok)
}

func TestTemperatureRecorderSamplesIn(t *testing.T) {
	r := NewTemperatureRecorder(10)
	r.Add(time.Now().Add(-time.Minute), 1)
	r.Add(time.Now().Add(-2*time.Second), 2)
	r.Add(time.Now(), 3)

	s := r.SamplesIn(10 * time.Second)
	require.Len(t, s, 2)
	assert.Equal(t, 2.0, s[0].TemperatureC)
}
