package procedure

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/device"
	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/laser"
	"github.com/atelab/opticalign/pkg/stream"
)

// Remote is the request/response control surface of the payload
// controller.
type Remote interface {
	device.Remote
	laser.Remote
}

// Session is one operator test session. It owns every component and is the
// only place they are wired together.
type Session struct {
	ID string

	hub     events.Publisher
	streams *stream.Channel
	devices *device.Controller
	laser   *laser.Controller
	steps   *StepController
	records *RecordLog
}

// NewSession wires a session. store may be nil.
func NewSession(cfg config.Config, remote Remote, channel *stream.Channel, store RecordStore, hub events.Publisher) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:      id,
		hub:     hub,
		streams: channel,
		devices: device.NewController(remote, cfg.DeviceDefaults(), cfg.LegacyDeviceEndpoints(), hub),
		laser:   laser.NewController(remote, cfg.TemperaturePollInterval(), cfg.CommandTimeout(), hub),
		records: NewRecordLog(id, store, hub),
	}
	s.steps = NewStepController(channel, s.devices, s.laser, cfg.TemperaturePolling, hub)
	logrus.WithField("session", id).Info("test session created")
	return s
}

// report publishes a failed operator action as a notice and returns err.
func (s *Session) report(source string, err error) error {
	if err == nil {
		return nil
	}
	level := events.LevelError
	if errors.Is(err, stream.ErrNotStreaming) || errors.Is(err, stream.ErrOverlayNotForwarded) {
		level = events.LevelWarning
	}
	events.Notify(s.hub, level, source, err.Error())
	return err
}

func (s *Session) Advance(ctx context.Context) Transition { return s.steps.Advance(ctx) }

func (s *Session) Retreat(ctx context.Context) Transition { return s.steps.Retreat(ctx) }

func (s *Session) SetAxis(ctx context.Context, axis ReferenceAxis) (AxisChange, error) {
	c, err := s.steps.SetAxis(ctx, axis)
	return c, s.report("procedure", err)
}

// RefreshPolling re-evaluates the temperature polling gate.
func (s *Session) RefreshPolling() { s.steps.RefreshPolling() }

func (s *Session) StartStream(ctx context.Context, id stream.CameraID) error {
	return s.report("stream", s.streams.StartStream(ctx, id))
}

func (s *Session) StopStream(ctx context.Context, id stream.CameraID) error {
	return s.report("stream", s.streams.StopStream(ctx, id))
}

func (s *Session) SetAlgorithm(ctx context.Context, id stream.CameraID, name string) error {
	return s.report("stream", s.streams.SetAlgorithm(ctx, id, name))
}

func (s *Session) SetOverlay(ctx context.Context, id stream.CameraID, kind stream.OverlayKind, enabled bool) error {
	return s.report("stream", s.streams.SetOverlay(ctx, id, kind, enabled))
}

func (s *Session) Camera(id stream.CameraID) (stream.Snapshot, error) {
	return s.streams.Camera(id)
}

// ControlDevice toggles the device when value is nil, otherwise adjusts it.
func (s *Session) ControlDevice(ctx context.Context, kind device.Kind, value *int) (device.State, error) {
	if err := s.devices.Control(ctx, kind, value); err != nil {
		return s.devices.State(kind), s.report("device", err)
	}
	return s.devices.State(kind), nil
}

// ControlPulsedLaser sends the full parameter tuple. The parameters are
// committed once the payload controller acknowledged them.
func (s *Session) ControlPulsedLaser(ctx context.Context, p laser.Params, op laser.Operation) (laser.State, error) {
	if err := s.laser.Control(ctx, p, op); err != nil {
		return s.laser.State(), s.report("pulsedLaser", err)
	}
	s.laser.SetParams(p)
	return s.laser.State(), nil
}

// PulsedLaserTemperature fetches one temperature reading now.
func (s *Session) PulsedLaserTemperature(ctx context.Context) (float64, error) {
	t, err := s.laser.FetchTemperature(ctx)
	return t, s.report("pulsedLaser", err)
}

func (s *Session) PulsedLaser() laser.State { return s.laser.State() }

func (s *Session) TemperatureHistory() []laser.Sample { return s.laser.History() }

func (s *Session) AddRecord(ctx context.Context) TestRecord { return s.records.Add(ctx) }

// CompleteRecord snapshots the reference camera of the current axis into
// record index.
func (s *Session) CompleteRecord(ctx context.Context, index int) (TestRecord, error) {
	cam := s.steps.Axis().ReferenceCamera()
	snap, err := s.streams.Camera(cam)
	if err != nil {
		return TestRecord{}, s.report("records", err)
	}
	r, err := s.records.Complete(ctx, index, snap)
	return r, s.report("records", err)
}

func (s *Session) Records() []TestRecord { return s.records.List() }

// Snapshot is the full session state.
type Snapshot struct {
	SessionID   string            `json:"sessionID"`
	Step        Step              `json:"step"`
	StepName    string            `json:"stepName"`
	Axis        ReferenceAxis     `json:"axis"`
	Connected   bool              `json:"connected"`
	Cameras     []stream.Snapshot `json:"cameras"`
	Devices     []device.State    `json:"devices"`
	PulsedLaser laser.State       `json:"pulsedLaser"`
	Records     []TestRecord      `json:"records"`
}

func (s *Session) Snapshot() Snapshot {
	step := s.steps.Step()
	return Snapshot{
		SessionID:   s.ID,
		Step:        step,
		StepName:    step.String(),
		Axis:        s.steps.Axis(),
		Connected:   s.streams.Connected(),
		Cameras:     s.streams.Snapshots(),
		Devices:     s.devices.Snapshot(),
		PulsedLaser: s.laser.State(),
		Records:     s.records.List(),
	}
}

// Close ends the session: it stops every streaming camera, severs the
// channel, forces the indicator laser off and cancels the temperature
// timer, in that order. A failing laser call is only logged.
func (s *Session) Close(ctx context.Context) error {
	log := logrus.WithField("session", s.ID)
	log.Info("closing test session")

	err := s.streams.Close(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to stop every stream")
	}
	if lerr := s.devices.ForceOff(ctx, device.IndicationLaser); lerr != nil {
		log.WithError(lerr).Warn("failed to turn the indicator laser off")
	}
	s.laser.StopPolling()
	return err
}
