package stream

import (
	"context"
	"net/url"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/net/websocket"
)

// Conn is one established streaming connection. Receive is only called by
// the channel's reader goroutine; Send may be called concurrently.
type Conn interface {
	Send(msg Message) error
	Receive() (Message, error)
	Close() error
}

// Transport dials new connections.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketTransport dials the payload controller's camera websocket.
type WebsocketTransport struct {
	URL string
}

func NewWebsocketTransport(rawURL string) *WebsocketTransport {
	return &WebsocketTransport{URL: rawURL}
}

func (t *WebsocketTransport) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid stream url %q", t.URL)
	}
	origin := &url.URL{Scheme: "http", Host: u.Host}
	if u.Scheme == "wss" {
		origin.Scheme = "https"
	}

	cfg, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to configure websocket for %s", t.URL)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to dial %s", t.URL)
	}
	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *websocketConn) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return websocket.JSON.Send(c.ws, msg)
}

func (c *websocketConn) Receive() (Message, error) {
	var msg Message
	err := websocket.JSON.Receive(c.ws, &msg)
	return msg, err
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}
