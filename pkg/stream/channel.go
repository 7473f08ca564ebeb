package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/atelab/opticalign/pkg/events"
)

type ackResult struct {
	ack AckPayload
	err error
}

// pendingCommand waits for one acknowledgment. commit runs on the reader
// goroutine when a positive acknowledgment arrives, before any later message
// on the connection is handled.
type pendingCommand struct {
	result chan ackResult
	commit func()
}

var errChannelClosed = fmt.Errorf("%w: channel closed", ErrNotConnected)

// Channel owns the single streaming connection shared by every camera. It
// connects lazily on the first command that needs it.
type Channel struct {
	transport      Transport
	hub            events.Publisher
	connectTimeout time.Duration
	commandTimeout time.Duration
	cameras        map[CameraID]*CameraSession
	group          singleflight.Group

	// decode is replaced in tests.
	decode func([]byte) (ImageSize, error)

	mu        sync.Mutex
	conn      Conn
	connected bool
	// gen identifies the current connection. A reader whose generation
	// is outdated exits without side effects.
	gen uint64
	// severs counts Sever calls. A dial that was overtaken by one discards
	// its connection.
	severs     uint64
	pending    map[string]*pendingCommand
	recovering bool
	// closing stops new recovery runs; closed refuses any further dial.
	closing        bool
	closed         bool
	cancelRecovery context.CancelFunc
	recovery       sync.WaitGroup
}

func NewChannel(transport Transport, connectTimeout, commandTimeout time.Duration, hub events.Publisher) *Channel {
	c := &Channel{
		transport:      transport,
		hub:            hub,
		connectTimeout: connectTimeout,
		commandTimeout: commandTimeout,
		cameras:        make(map[CameraID]*CameraSession, len(Cameras)),
		decode:         DecodeImageSize,
		pending:        make(map[string]*pendingCommand),
	}
	for _, id := range Cameras {
		c.cameras[id] = NewCameraSession(id)
	}
	return c
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the connection if there is none. Concurrent callers
// share one dial.
func (c *Channel) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	ch := c.group.DoChan("connect", func() (any, error) {
		return nil, c.dial()
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) dial() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errChannelClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	severs := c.severs
	stale := c.conn
	if stale != nil {
		c.conn = nil
		c.gen++
	}
	c.mu.Unlock()

	if stale != nil {
		logrus.Debug("severing stale stream connection")
		_ = stale.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()

	conn, err := c.transport.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrConnectTimeout, c.connectTimeout)
		}
		return pkgerrors.Wrap(err, "failed to connect stream channel")
	}

	c.mu.Lock()
	if c.closed || c.severs != severs {
		c.mu.Unlock()
		logrus.Debug("discarding stream connection severed while dialing")
		_ = conn.Close()
		if c.closed {
			return errChannelClosed
		}
		return ErrNotConnected
	}
	c.conn = conn
	c.connected = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	logrus.Info("stream channel connected")
	go c.read(conn, gen)
	return nil
}

// Sever drops the connection without stopping any stream.
func (c *Channel) Sever() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.gen++
	c.severs++
	pending := c.takePendingLocked()
	c.mu.Unlock()

	failPending(pending)
	if conn != nil {
		logrus.Debug("severing stream connection")
		_ = conn.Close()
	}
}

// Close cancels any recovery in progress, stops every streaming camera, then
// severs the connection for good. Cameras whose stop failed are reset
// locally.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	cancel := c.cancelRecovery
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.recovery.Wait()

	var errs []error
	for _, id := range c.Streaming() {
		if err := c.StopStream(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Sever()

	for _, id := range Cameras {
		c.dropLocal(id)
	}
	return errors.Join(errs...)
}

func (c *Channel) read(conn Conn, gen uint64) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				logrus.WithError(err).Warn("dropping malformed stream message")
				continue
			}
			c.lost(gen, err)
			return
		}

		switch msg.Type {
		case TypeAck:
			c.deliverAck(msg)
		case TypeFrame:
			c.applyFrame(msg)
		default:
			logrus.WithField("type", msg.Type).Debug("ignoring stream message")
		}
	}
}

func (c *Channel) lost(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.connected = false
	pending := c.takePendingLocked()
	streaming := c.Streaming()
	restart := len(streaming) > 0 && !c.recovering && !c.closing
	var ctx context.Context
	if restart {
		c.recovering = true
		ctx, c.cancelRecovery = context.WithCancel(context.Background())
		c.recovery.Add(1)
	}
	c.mu.Unlock()

	failPending(pending)
	logrus.WithError(cause).WithField("streaming", streaming).Warn("stream connection lost")
	if !restart {
		return
	}
	events.Notify(c.hub, events.LevelWarning, "stream", "stream connection lost, reconnecting")
	go c.restart(ctx, streaming)
}

// restart runs the single reconnect and stop/restart cycle after a
// connection loss. Cameras that cannot be restarted are reset locally.
// Cancelling parent abandons the run and leaves the remaining cameras to the
// caller.
func (c *Channel) restart(parent context.Context, ids []CameraID) {
	defer c.recovery.Done()
	defer func() {
		c.mu.Lock()
		c.recovering = false
		c.cancelRecovery()
		c.cancelRecovery = nil
		c.mu.Unlock()
	}()

	budget := c.connectTimeout + time.Duration(2*len(ids))*c.commandTimeout
	ctx, cancel := context.WithTimeout(parent, budget)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		if parent.Err() != nil {
			logrus.Debug("stream recovery cancelled")
			return
		}
		logrus.WithError(err).Error("stream reconnect failed")
		events.Notify(c.hub, events.LevelError, "stream", "reconnect failed: "+err.Error())
		for _, id := range ids {
			c.dropLocal(id)
		}
		return
	}

	for _, id := range ids {
		if parent.Err() != nil {
			logrus.Debug("stream recovery cancelled")
			return
		}
		log := logrus.WithField("camera", id)
		if err := c.StopStream(ctx, id); err != nil {
			log.WithError(err).Warn("stop before restart failed")
		}
		if parent.Err() != nil {
			logrus.Debug("stream recovery cancelled")
			return
		}
		if err := c.StartStream(ctx, id); err != nil {
			log.WithError(err).Error("restart after reconnect failed")
			events.Notify(c.hub, events.LevelError, "stream", err.Error())
			c.dropLocal(id)
			continue
		}
		log.Info("stream restarted after reconnect")
	}
}

func (c *Channel) dropLocal(id CameraID) {
	cam := c.cameras[id]
	if !cam.Streaming() {
		return
	}
	cam.markStopped()
	c.publishStream(id, false)
}

func (c *Channel) deliverAck(msg Message) {
	c.mu.Lock()
	p, ok := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()

	if !ok {
		logrus.WithField("requestID", msg.RequestID).Debug("ignoring unmatched acknowledgment")
		return
	}
	var ack AckPayload
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		p.result <- ackResult{err: pkgerrors.Wrap(err, "malformed acknowledgment")}
		return
	}
	if ack.Success && p.commit != nil {
		p.commit()
	}
	p.result <- ackResult{ack: ack}
}

func (c *Channel) applyFrame(msg Message) {
	var p FramePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		logrus.WithError(err).Warn("dropping malformed frame")
		return
	}
	cam, ok := c.cameras[p.CameraID]
	if !ok {
		logrus.WithField("camera", p.CameraID).Debug("dropping frame for unknown camera")
		return
	}
	seq, ok := cam.applyFrame(p.Data, p.Centroid)
	if !ok {
		return
	}

	ev := events.FrameArrivedEvent{Camera: string(p.CameraID), Seq: seq, Bytes: len(p.Data)}
	if p.Centroid != nil {
		ev.Centroid = p.Centroid.Success
		ev.X, ev.Y, ev.Radius = p.Centroid.X, p.Centroid.Y, p.Centroid.Radius
		ev.Algorithm = p.Centroid.Algorithm
	}
	if c.hub != nil {
		c.hub.Publish(events.FrameArrived, ev)
	}

	go func(data []byte) {
		size, err := c.decode(data)
		if err != nil {
			logrus.WithError(err).WithField("camera", p.CameraID).Debug("failed to decode frame header")
			return
		}
		cam.applySize(seq, size)
	}(p.Data)
}

// command sends one command and waits for its acknowledgment, matched by
// request id. commit, if not nil, is applied on a positive acknowledgment.
func (c *Channel) command(ctx context.Context, typ string, p CommandPayload, commit func()) (AckPayload, error) {
	id := uuid.NewString()
	msg, err := NewMessage(typ, id, p)
	if err != nil {
		return AckPayload{}, err
	}

	pc := &pendingCommand{result: make(chan ackResult, 1), commit: commit}
	ch := pc.result
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return AckPayload{}, ErrNotConnected
	}
	conn := c.conn
	c.pending[id] = pc
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"type":      typ,
		"camera":    p.CameraID,
		"requestID": id,
	}).Debug("sending stream command")

	if err := conn.Send(msg); err != nil {
		c.forget(id)
		return AckPayload{}, pkgerrors.Wrapf(err, "failed to send %s", typ)
	}

	timer := time.NewTimer(c.commandTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.ack, r.err
	case <-timer.C:
		if !c.forget(id) {
			// The acknowledgment is already being delivered.
			r := <-ch
			return r.ack, r.err
		}
		return AckPayload{}, fmt.Errorf("no acknowledgment for %s within %s: %w", typ, c.commandTimeout, context.DeadlineExceeded)
	case <-ctx.Done():
		if !c.forget(id) {
			r := <-ch
			return r.ack, r.err
		}
		return AckPayload{}, ctx.Err()
	}
}

// acked runs command and turns a negative acknowledgment into an error.
func (c *Channel) acked(ctx context.Context, typ string, p CommandPayload, commit func()) error {
	ack, err := c.command(ctx, typ, p, commit)
	if err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("%w: %s", ErrCommandRejected, ack.Message)
	}
	return nil
}

// StartStream connects if needed and asks the payload controller to stream
// camera id. The session is marked streaming only after a positive
// acknowledgment.
func (c *Channel) StartStream(ctx context.Context, id CameraID) error {
	cam, err := c.camera(id)
	if err != nil {
		return err
	}
	log := logrus.WithField("camera", id)

	if err := c.Connect(ctx); err != nil {
		log.WithError(err).Error("failed to start stream")
		return fmt.Errorf("%w: %s: %w", ErrStreamStartFailed, id, err)
	}
	if err := c.acked(ctx, TypeStartStream, CommandPayload{CameraID: id}, cam.markStreaming); err != nil {
		log.WithError(err).Error("failed to start stream")
		return fmt.Errorf("%w: %s: %w", ErrStreamStartFailed, id, err)
	}

	log.Info("stream started")
	c.publishStream(id, true)
	return nil
}

// StopStream asks the payload controller to stop camera id. On a positive
// acknowledgment the session's frame, centroid and image size are reset.
func (c *Channel) StopStream(ctx context.Context, id CameraID) error {
	cam, err := c.camera(id)
	if err != nil {
		return err
	}
	log := logrus.WithField("camera", id)

	if err := c.Connect(ctx); err != nil {
		log.WithError(err).Error("failed to stop stream")
		return fmt.Errorf("%w: %s: %w", ErrStreamStopFailed, id, err)
	}
	if err := c.acked(ctx, TypeStopStream, CommandPayload{CameraID: id}, cam.markStopped); err != nil {
		log.WithError(err).Error("failed to stop stream")
		return fmt.Errorf("%w: %s: %w", ErrStreamStopFailed, id, err)
	}

	log.Info("stream stopped")
	c.publishStream(id, false)
	return nil
}

// SetAlgorithm selects the centroid algorithm of a streaming camera. A
// camera that is not streaming is left alone.
func (c *Channel) SetAlgorithm(ctx context.Context, id CameraID, name string) error {
	cam, err := c.camera(id)
	if err != nil {
		return err
	}
	if !ValidAlgorithm(name) {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	log := logrus.WithFields(logrus.Fields{"camera": id, "algorithm": name})
	if !cam.Streaming() {
		log.Warn("not setting algorithm, camera is not streaming")
		return fmt.Errorf("%w: %s", ErrNotStreaming, id)
	}

	if err := c.acked(ctx, TypeSetAlgorithm, CommandPayload{CameraID: id, Algorithm: name}, func() { cam.setAlgorithm(name) }); err != nil {
		log.WithError(err).Error("failed to set algorithm")
		return pkgerrors.Wrapf(err, "failed to set algorithm of %s", id)
	}
	log.Info("algorithm set")
	return nil
}

// SetOverlay flips an overlay flag locally and forwards it when connected.
// When not connected the flag is still set and ErrOverlayNotForwarded is
// returned.
func (c *Channel) SetOverlay(ctx context.Context, id CameraID, kind OverlayKind, enabled bool) error {
	cam, err := c.camera(id)
	if err != nil {
		return err
	}
	typ := TypeSetCentroid
	switch kind {
	case OverlayCentroid:
	case OverlayCrosshair:
		typ = TypeSetCrosshair
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOverlay, kind)
	}

	cam.setOverlay(kind, enabled)
	log := logrus.WithFields(logrus.Fields{"camera": id, "overlay": kind, "enabled": enabled})
	if !c.Connected() {
		log.Warn("overlay set locally only, stream channel not connected")
		return fmt.Errorf("%w: %s", ErrOverlayNotForwarded, id)
	}
	if err := c.acked(ctx, typ, CommandPayload{CameraID: id, Enabled: &enabled}, nil); err != nil {
		log.WithError(err).Error("failed to forward overlay")
		return pkgerrors.Wrapf(err, "failed to set %s overlay of %s", kind, id)
	}
	return nil
}

func (c *Channel) IsStreaming(id CameraID) bool {
	cam, ok := c.cameras[id]
	return ok && cam.Streaming()
}

// Streaming returns the cameras currently streaming, in display order.
func (c *Channel) Streaming() []CameraID {
	var out []CameraID
	for _, id := range Cameras {
		if c.cameras[id].Streaming() {
			out = append(out, id)
		}
	}
	return out
}

// Camera returns a copy of one camera's state.
func (c *Channel) Camera(id CameraID) (Snapshot, error) {
	cam, err := c.camera(id)
	if err != nil {
		return Snapshot{}, err
	}
	return cam.Snapshot(), nil
}

func (c *Channel) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(Cameras))
	for _, id := range Cameras {
		s := c.cameras[id].Snapshot()
		s.Frame = nil
		out = append(out, s)
	}
	return out
}

func (c *Channel) camera(id CameraID) (*CameraSession, error) {
	cam, ok := c.cameras[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCamera, id)
	}
	return cam, nil
}

// forget drops a pending command and reports whether it was still waiting.
func (c *Channel) forget(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

func (c *Channel) takePendingLocked() map[string]*pendingCommand {
	p := c.pending
	c.pending = make(map[string]*pendingCommand)
	return p
}

func failPending(p map[string]*pendingCommand) {
	for _, pc := range p {
		pc.result <- ackResult{err: ErrNotConnected}
	}
}

func (c *Channel) publishStream(id CameraID, streaming bool) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(events.StreamChanged, events.StreamChangedEvent{Camera: string(id), Streaming: streaming})
}
