package procedure

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/device"
	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/stream"
)

// teardownTimeout bounds one cleanup run. Cleanup is detached from the
// caller's context so a client that goes away mid-transition cannot leave
// hardware running behind the new step.
const teardownTimeout = 30 * time.Second

// Streams is the part of the streaming channel the step controller tears
// down.
type Streams interface {
	IsStreaming(id stream.CameraID) bool
	StopStream(ctx context.Context, id stream.CameraID) error
}

// Devices is the part of the composite device controller the step controller
// tears down.
type Devices interface {
	IsOn(kind device.Kind) bool
	TurnOff(ctx context.Context, kind device.Kind) error
}

// TemperaturePoller is the pulsed laser temperature timer.
type TemperaturePoller interface {
	StartPolling()
	StopPolling()
	Polling() bool
}

// Transition describes one step change request.
type Transition struct {
	From  Step `json:"from"`
	To    Step `json:"to"`
	Moved bool `json:"moved"`
	// Notice is set when the request was a no-op at either end.
	Notice         string   `json:"notice,omitempty"`
	TeardownErrors []string `json:"teardownErrors,omitempty"`
}

// AxisChange describes one reference axis change request.
type AxisChange struct {
	From           ReferenceAxis `json:"from"`
	To             ReferenceAxis `json:"to"`
	Changed        bool          `json:"changed"`
	TeardownErrors []string      `json:"teardownErrors,omitempty"`
}

// StepController is the test procedure state machine. Every step change runs
// the cleanup of the step being left to completion before the step being
// entered is initialized. Entering a step never activates hardware.
type StepController struct {
	streams Streams
	devices Devices
	poller  TemperaturePoller
	hub     events.Publisher
	// pollingEnabled is read on every evaluation so a config reload takes
	// effect at the next transition.
	pollingEnabled func() bool

	// transition serializes step and axis changes.
	transition sync.Mutex

	mu   sync.RWMutex
	step Step
	axis ReferenceAxis
}

func NewStepController(streams Streams, devices Devices, poller TemperaturePoller, pollingEnabled func() bool, hub events.Publisher) *StepController {
	if pollingEnabled == nil {
		pollingEnabled = func() bool { return true }
	}
	return &StepController{
		streams:        streams,
		devices:        devices,
		poller:         poller,
		hub:            hub,
		pollingEnabled: pollingEnabled,
		step:           FirstStep,
		axis:           DefaultAxis,
	}
}

func (c *StepController) Step() Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

func (c *StepController) Axis() ReferenceAxis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.axis
}

// Advance moves to the next step. At the last step it only reports that the
// test is complete.
func (c *StepController) Advance(ctx context.Context) Transition {
	c.transition.Lock()
	defer c.transition.Unlock()

	from := c.Step()
	if from >= LastStep {
		t := Transition{From: from, To: from, Notice: "alignment test complete"}
		events.Notify(c.hub, events.LevelSuccess, "procedure", t.Notice)
		return t
	}
	return c.move(ctx, from, from+1)
}

// Retreat moves to the previous step. At the first step it only warns.
func (c *StepController) Retreat(ctx context.Context) Transition {
	c.transition.Lock()
	defer c.transition.Unlock()

	from := c.Step()
	if from <= FirstStep {
		t := Transition{From: from, To: from, Notice: "already at the first step"}
		events.Notify(c.hub, events.LevelWarning, "procedure", t.Notice)
		return t
	}
	return c.move(ctx, from, from-1)
}

func (c *StepController) move(ctx context.Context, from, to Step) Transition {
	log := logrus.WithFields(logrus.Fields{"from": from, "to": to})
	log.Info("changing step")

	failures := c.cleanup(ctx, from)

	c.mu.Lock()
	c.step = to
	c.mu.Unlock()

	c.init(from, to)
	log.Info("step changed")
	return Transition{From: from, To: to, Moved: true, TeardownErrors: failures}
}

// SetAxis changes the reference axis. Any change re-runs the reference setup
// cleanup, whatever the current step.
func (c *StepController) SetAxis(ctx context.Context, axis ReferenceAxis) (AxisChange, error) {
	if !axis.Valid() {
		return AxisChange{}, ErrInvalidAxis
	}
	c.transition.Lock()
	defer c.transition.Unlock()

	from := c.Axis()
	if from == axis {
		return AxisChange{From: from, To: axis}, nil
	}

	logrus.WithFields(logrus.Fields{"from": from, "to": axis}).Info("changing reference axis")
	failures := c.cleanup(ctx, StepReferenceSetup)

	c.mu.Lock()
	c.axis = axis
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.Publish(events.AxisChanged, events.AxisChangedEvent{Type: string(axis.Type), Spectrum: string(axis.Spectrum)})
	}
	c.refreshPolling()
	return AxisChange{From: from, To: axis, Changed: true, TeardownErrors: failures}, nil
}

// cleanup tears down what step s may have activated. Each call is awaited
// before the next one is issued. Failures are reported and collected; they
// never stop the transition.
func (c *StepController) cleanup(parent context.Context, s Step) []string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), teardownTimeout)
	defer cancel()

	var failures []string
	fail := func(err error) {
		logrus.WithError(err).WithField("step", s).Error("teardown failed")
		events.Notify(c.hub, events.LevelError, "procedure", err.Error())
		failures = append(failures, err.Error())
	}
	stop := func(ids ...stream.CameraID) {
		for _, id := range ids {
			if !c.streams.IsStreaming(id) {
				continue
			}
			if err := c.streams.StopStream(ctx, id); err != nil {
				fail(err)
			}
		}
	}
	off := func(kinds ...device.Kind) {
		for _, k := range kinds {
			if !c.devices.IsOn(k) {
				continue
			}
			if err := c.devices.TurnOff(ctx, k); err != nil {
				fail(err)
			}
		}
	}

	switch s {
	case StepCoarseAlignment:
		stop(stream.Pod)
		off(device.IndicationLaser)
	case StepReferenceSetup:
		stop(stream.Cameras...)
		off(device.BlackBody, device.VisibleLight)
	case StepMeasurement:
		stop(c.Axis().Cameras()...)
	}
	return failures
}

// init runs after the step is stored. It only evaluates the temperature
// polling gate and announces the step.
func (c *StepController) init(from, to Step) {
	c.refreshPolling()
	if c.hub != nil {
		c.hub.Publish(events.StepChanged, events.StepChangedEvent{From: int(from), To: int(to), Name: to.String()})
	}
}

// PollingWanted reports whether the temperature timer should run: only on
// the reference setup and measurement steps of a laser axis, and only when
// the feature is enabled.
func (c *StepController) PollingWanted() bool {
	c.mu.RLock()
	step, axis := c.step, c.axis
	c.mu.RUnlock()
	return (step == StepReferenceSetup || step == StepMeasurement) &&
		axis.Spectrum == SpectrumLaser &&
		c.pollingEnabled()
}

// RefreshPolling re-evaluates the polling gate outside a transition, after a
// config reload.
func (c *StepController) RefreshPolling() {
	c.transition.Lock()
	defer c.transition.Unlock()
	c.refreshPolling()
}

// refreshPolling starts or stops the temperature timer to match the gate.
func (c *StepController) refreshPolling() {
	want := c.PollingWanted()
	switch {
	case want && !c.poller.Polling():
		c.poller.StartPolling()
	case !want && c.poller.Polling():
		c.poller.StopPolling()
	}
}
