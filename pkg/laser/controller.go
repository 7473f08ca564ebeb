package laser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/payload"
)

// Operation discriminates what a control request changes.
type Operation string

const (
	OpToggle     Operation = "toggle"
	OpPower      Operation = "power"
	OpFrequency  Operation = "frequency"
	OpPulseWidth Operation = "pulse_width"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpToggle, OpPower, OpFrequency, OpPulseWidth:
		return op, nil
	case "pulseWidth", "pulse-width":
		return OpPulseWidth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Params is the full parameter tuple sent with every control request.
type Params struct {
	Power        float64 `json:"power"`
	FrequencyHz  float64 `json:"frequencyHz"`
	PulseWidthNs float64 `json:"pulseWidthNs"`
}

// State is the pulsed laser state as seen by the session.
type State struct {
	On bool `json:"on"`
	Params
	Frequency     string    `json:"frequency"`
	TemperatureC  float64   `json:"temperatureC"`
	TemperatureAt time.Time `json:"temperatureAt,omitempty"`
	Polling       bool      `json:"polling"`
}

// Remote is the part of the payload controller client the pulsed laser
// needs.
type Remote interface {
	ControlPulsedLaser(ctx context.Context, req payload.PulsedLaserRequest) error
	PulsedLaserTemperature(ctx context.Context) (float64, error)
}

// Controller drives the pulsed SWIR laser and polls its temperature.
type Controller struct {
	remote  Remote
	hub     events.Publisher
	poller  *Poller
	history *TemperatureRecorder
	timeout time.Duration

	mu    sync.Mutex
	state State
}

// NewController creates a Controller polling every interval. timeout bounds
// one temperature fetch.
func NewController(remote Remote, interval, timeout time.Duration, hub events.Publisher) *Controller {
	c := &Controller{
		remote:  remote,
		hub:     hub,
		history: NewTemperatureRecorder(60),
		timeout: timeout,
	}
	c.poller = NewPoller(interval, c.pollOnce)
	return c
}

// Control sends the full parameter tuple with op. Only a successful toggle
// changes local state; committing the other parameters is left to the caller
// through SetParams.
func (c *Controller) Control(ctx context.Context, p Params, op Operation) error {
	if _, err := ParseOperation(string(op)); err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{
		"operation":  op,
		"power":      p.Power,
		"frequency":  p.FrequencyHz,
		"pulseWidth": p.PulseWidthNs,
	})

	err := c.remote.ControlPulsedLaser(ctx, payload.PulsedLaserRequest{
		Power:      p.Power,
		Frequency:  p.FrequencyHz,
		PulseWidth: p.PulseWidthNs,
		Operation:  string(op),
	})
	if err != nil {
		log.WithError(err).Error("pulsed laser control failed")
		return fmt.Errorf("%w: %s: %w", ErrControlFailed, op, err)
	}
	log.Info("pulsed laser control acknowledged")

	c.mu.Lock()
	if op == OpToggle {
		c.state.On = !c.state.On
	}
	st := c.state
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.Publish(events.PulsedLaserChanged, events.PulsedLaserChangedEvent{
			On:        st.On,
			Operation: string(op),
			Power:     p.Power,
			Frequency: p.FrequencyHz,
			Width:     p.PulseWidthNs,
		})
	}
	return nil
}

// SetParams commits parameters after the caller saw a successful control.
func (c *Controller) SetParams(p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Params = p
}

// Params returns the committed parameters.
func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Params
}

// StartPolling restarts the temperature timer.
func (c *Controller) StartPolling() {
	logrus.Debug("starting pulsed laser temperature polling")
	c.poller.Start()
}

// StopPolling cancels the temperature timer, if any.
func (c *Controller) StopPolling() {
	if c.poller.Running() {
		logrus.Debug("stopping pulsed laser temperature polling")
	}
	c.poller.Stop()
}

func (c *Controller) Polling() bool {
	return c.poller.Running()
}

// FetchTemperature reads the temperature once and records it.
func (c *Controller) FetchTemperature(ctx context.Context) (float64, error) {
	t, err := c.remote.PulsedLaserTemperature(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPollingFetchFailed, err)
	}
	now := time.Now()

	c.mu.Lock()
	c.state.TemperatureC = t
	c.state.TemperatureAt = now
	c.mu.Unlock()

	c.history.Add(now, t)
	if c.hub != nil {
		c.hub.Publish(events.TemperatureSampled, events.TemperatureSampledEvent{TemperatureC: t})
	}
	return t, nil
}

func (c *Controller) pollOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	if _, err := c.FetchTemperature(ctx); err != nil {
		if parent.Err() != nil {
			// Stopped mid-fetch.
			return
		}
		logrus.WithError(err).Warn("pulsed laser temperature poll failed")
		events.Notify(c.hub, events.LevelWarning, "pulsedLaser", err.Error())
	}
}

// History returns the recorded temperature readings, oldest first.
func (c *Controller) History() []Sample {
	return c.history.Samples()
}

// State returns a copy of the laser state.
func (c *Controller) State() State {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	st.Frequency = FormatFrequency(st.FrequencyHz)
	st.Polling = c.poller.Running()
	return st
}
