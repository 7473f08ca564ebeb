package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/events"
)

// Remote is the part of the payload controller client the composite devices
// need.
type Remote interface {
	ControlCompositeDevice(ctx context.Context, device string, value int) error
	SetDeviceValue(ctx context.Context, endpoint, param string, value int) error
}

// State is the acknowledged state of one composite device.
type State struct {
	Kind Kind `json:"kind"`
	On   bool `json:"on"`
	// Value is 0 whenever On is false.
	Value int `json:"value"`
	// LastValue is the value the device had when it was last switched off.
	LastValue int    `json:"lastValue"`
	Display   string `json:"display"`
}

// Controller switches and parameterizes the composite devices. Local state
// only changes after the payload controller acknowledged the command.
type Controller struct {
	remote   Remote
	defaults config.DeviceDefaults
	legacy   bool
	hub      events.Publisher

	mu     sync.Mutex
	states map[Kind]*State
	// ops serializes commands per device so a toggle always starts from the
	// state left by the previous acknowledgment.
	ops map[Kind]*sync.Mutex
}

// NewController creates a Controller. With legacy set, commands go to the
// per-device endpoints instead of the unified one.
func NewController(remote Remote, defaults config.DeviceDefaults, legacy bool, hub events.Publisher) *Controller {
	c := &Controller{
		remote:   remote,
		defaults: defaults,
		legacy:   legacy,
		hub:      hub,
		states:   make(map[Kind]*State, len(Kinds)),
		ops:      make(map[Kind]*sync.Mutex, len(Kinds)),
	}
	for _, k := range Kinds {
		c.states[k] = &State{Kind: k}
		c.ops[k] = &sync.Mutex{}
	}
	return c
}

// Control toggles the device when value is nil, otherwise adjusts it.
func (c *Controller) Control(ctx context.Context, kind Kind, value *int) error {
	if value == nil {
		return c.Toggle(ctx, kind)
	}
	return c.Adjust(ctx, kind, *value)
}

// Toggle switches the device on with its remembered (or default) value, or
// off.
func (c *Controller) Toggle(ctx context.Context, kind Kind) error {
	if !kind.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	op := c.ops[kind]
	op.Lock()
	defer op.Unlock()

	cur := c.State(kind)
	target := 0
	if !cur.On {
		target = cur.LastValue
		if target == 0 {
			target = DefaultValue(kind, c.defaults)
		}
	}

	if err := c.send(ctx, kind, target); err != nil {
		return err
	}

	c.mu.Lock()
	st := c.states[kind]
	st.On = !st.On
	if st.On {
		st.Value = target
	} else {
		st.LastValue = st.Value
		st.Value = 0
	}
	c.mu.Unlock()

	c.publish(kind)
	return nil
}

// Adjust sets a new value on a device that is on. On a device that is off it
// does nothing, so dragging a slider never switches hardware on. A failed
// adjustment keeps the last acknowledged value.
func (c *Controller) Adjust(ctx context.Context, kind Kind, value int) error {
	if !kind.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if value < 0 || value > dispatch[kind].Max {
		return fmt.Errorf("%w: %s accepts 0..%d, got %d", ErrValueOutOfRange, kind, dispatch[kind].Max, value)
	}
	op := c.ops[kind]
	op.Lock()
	defer op.Unlock()

	if !c.State(kind).On {
		logrus.WithFields(logrus.Fields{
			"device": kind,
			"value":  value,
		}).Debug("device is off, ignoring adjustment")
		return nil
	}

	if err := c.send(ctx, kind, value); err != nil {
		return err
	}

	c.mu.Lock()
	c.states[kind].Value = value
	c.mu.Unlock()

	c.publish(kind)
	return nil
}

// TurnOff switches the device off if it is on.
func (c *Controller) TurnOff(ctx context.Context, kind Kind) error {
	if !kind.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	op := c.ops[kind]
	op.Lock()
	defer op.Unlock()

	if !c.State(kind).On {
		return nil
	}
	if err := c.send(ctx, kind, 0); err != nil {
		return err
	}

	c.mu.Lock()
	st := c.states[kind]
	st.On = false
	st.LastValue = st.Value
	st.Value = 0
	c.mu.Unlock()

	c.publish(kind)
	return nil
}

// ForceOff sends a zero value whatever the local state says.
func (c *Controller) ForceOff(ctx context.Context, kind Kind) error {
	if !kind.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	op := c.ops[kind]
	op.Lock()
	defer op.Unlock()

	if err := c.send(ctx, kind, 0); err != nil {
		return err
	}

	c.mu.Lock()
	st := c.states[kind]
	if st.On {
		st.LastValue = st.Value
	}
	st.On = false
	st.Value = 0
	c.mu.Unlock()

	c.publish(kind)
	return nil
}

// IsOn reports the acknowledged on/off state.
func (c *Controller) IsOn(kind Kind) bool {
	return c.State(kind).On
}

// State returns a copy of the device state.
func (c *Controller) State(kind Kind) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[kind]
	if !ok {
		return State{Kind: kind}
	}
	cp := *st
	cp.Display = Format(kind, cp.Value)
	return cp
}

// Snapshot returns every device state in display order.
func (c *Controller) Snapshot() []State {
	out := make([]State, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, c.State(k))
	}
	return out
}

func (c *Controller) send(ctx context.Context, kind Kind, value int) error {
	log := logrus.WithFields(logrus.Fields{
		"device": kind,
		"value":  value,
	})

	var err error
	if c.legacy {
		s := dispatch[kind]
		err = c.remote.SetDeviceValue(ctx, s.Endpoint, s.Param, value)
	} else {
		err = c.remote.ControlCompositeDevice(ctx, string(kind), value)
	}
	if err != nil {
		log.WithError(err).Error("device control failed")
		return fmt.Errorf("%w: %s: %w", ErrDeviceControlFailed, kind, err)
	}
	log.Info("device control acknowledged")
	return nil
}

func (c *Controller) publish(kind Kind) {
	if c.hub == nil {
		return
	}
	st := c.State(kind)
	c.hub.Publish(events.DeviceChanged, events.DeviceChangedEvent{
		Kind:    string(kind),
		On:      st.On,
		Value:   st.Value,
		Display: st.Display,
	})
}
