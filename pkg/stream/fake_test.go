package stream

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
)

// fakeConn is an in-memory connection. respond is called for every message
// the channel sends and its replies are queued for Receive.
type fakeConn struct {
	in      chan Message
	closed  chan struct{}
	once    sync.Once
	respond func(Message) []Message

	mu   sync.Mutex
	sent []Message
}

func newFakeConn(respond func(Message) []Message) *fakeConn {
	return &fakeConn{
		in:      make(chan Message, 64),
		closed:  make(chan struct{}),
		respond: respond,
	}
}

func (c *fakeConn) Send(msg Message) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	if c.respond != nil {
		for _, r := range c.respond(msg) {
			c.in <- r
		}
	}
	return nil
}

func (c *fakeConn) Receive() (Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return Message{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(msg Message) { c.in <- msg }

// sentTypes returns "type camera" for every message sent so far.
func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		var p CommandPayload
		_ = json.Unmarshal(m.Payload, &p)
		out = append(out, m.Type+" "+string(p.CameraID))
	}
	return out
}

type fakeTransport struct {
	dials   atomic.Int32
	respond func(Message) []Message
	// gate, when set, blocks Dial until it is closed or ctx is done.
	gate chan struct{}

	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.dials.Add(1)
	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := newFakeConn(t.respond)
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func ackSuccess(msg Message) []Message {
	return []Message{ack(msg.RequestID, true, "ok")}
}

func ack(requestID string, success bool, message string) Message {
	m, _ := NewMessage(TypeAck, requestID, AckPayload{Success: success, Message: message})
	return m
}

func frame(id CameraID, data []byte, c *Centroid) Message {
	m, _ := NewMessage(TypeFrame, "", FramePayload{CameraID: id, Data: data, Centroid: c})
	return m
}

func msgPayload(m Message, v any) error {
	return json.Unmarshal(m.Payload, v)
}
