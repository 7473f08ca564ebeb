package simulator

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/atelab/opticalign/pkg/stream"
)

const spotSigma = 3.0

type cameraState struct {
	streaming bool
	algorithm string
	centroid  bool
	crosshair bool
}

// cameraConn is one websocket client. Streams belong to the connection and
// end with it.
type cameraConn struct {
	srv *Server
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	cameras map[stream.CameraID]*cameraState
}

func (s *Server) serveCamera(ws *websocket.Conn) {
	conn := &cameraConn{srv: s, ws: ws, cameras: map[stream.CameraID]*cameraState{}}
	done := make(chan struct{})
	go conn.emitFrames(done)
	defer func() {
		close(done)
		_ = ws.Close()
		s.record("disconnect")
		logrus.Info("camera client disconnected, all streams stopped")
	}()
	logrus.Info("camera client connected")

	for {
		var msg stream.Message
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return
		}
		conn.handle(msg)
	}
}

func (c *cameraConn) state(id stream.CameraID) *cameraState {
	st, ok := c.cameras[id]
	if !ok {
		st = &cameraState{algorithm: stream.DefaultAlgorithm, centroid: true, crosshair: true}
		c.cameras[id] = st
	}
	return st
}

func (c *cameraConn) handle(msg stream.Message) {
	var p stream.CommandPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		c.ack(msg.RequestID, false, "malformed payload")
		return
	}
	c.srv.record("%s %s", msg.Type, p.CameraID)

	id, err := stream.ParseCameraID(string(p.CameraID))
	if err != nil {
		c.ack(msg.RequestID, false, err.Error())
		return
	}
	if c.srv.fails(msg.Type) {
		c.ack(msg.RequestID, false, string(id)+" camera not available")
		return
	}

	c.mu.Lock()
	st := c.state(id)
	success, message := true, ""
	switch msg.Type {
	case stream.TypeStartStream:
		st.streaming = true
		message = "started " + string(id)
	case stream.TypeStopStream:
		st.streaming = false
		message = "stopped " + string(id)
	case stream.TypeSetAlgorithm:
		if !stream.ValidAlgorithm(p.Algorithm) {
			success, message = false, "unknown algorithm "+p.Algorithm
			break
		}
		st.algorithm = p.Algorithm
		message = "algorithm of " + string(id) + " set to " + p.Algorithm
	case stream.TypeSetCentroid, stream.TypeSetCrosshair:
		if p.Enabled == nil {
			success, message = false, "missing enabled"
			break
		}
		if msg.Type == stream.TypeSetCentroid {
			st.centroid = *p.Enabled
		} else {
			st.crosshair = *p.Enabled
		}
	default:
		success, message = false, "unsupported command "+msg.Type
	}
	c.mu.Unlock()

	c.ack(msg.RequestID, success, message)
}

func (c *cameraConn) ack(requestID string, success bool, message string) {
	msg, err := stream.NewMessage(stream.TypeAck, requestID, stream.AckPayload{Success: success, Message: message})
	if err != nil {
		return
	}
	c.send(msg)
}

func (c *cameraConn) send(msg stream.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := websocket.JSON.Send(c.ws, msg); err != nil {
		logrus.WithError(err).Debug("failed to write to camera client")
	}
}

func (c *cameraConn) emitFrames(done <-chan struct{}) {
	ticker := time.NewTicker(c.srv.opts.FrameInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			type job struct {
				id stream.CameraID
				st cameraState
			}
			var jobs []job
			c.mu.Lock()
			for _, id := range stream.Cameras {
				if st, ok := c.cameras[id]; ok && st.streaming {
					jobs = append(jobs, job{id, *st})
				}
			}
			c.mu.Unlock()

			for i, j := range jobs {
				phase := now.Sub(start).Seconds()/4 + float64(i)
				data, centroid, err := renderFrame(c.srv.opts.Width, c.srv.opts.Height, phase, j.st)
				if err != nil {
					logrus.WithError(err).Error("failed to render frame")
					continue
				}
				msg, err := stream.NewMessage(stream.TypeFrame, "", stream.FramePayload{
					CameraID: j.id,
					Data:     data,
					Centroid: centroid,
				})
				if err != nil {
					continue
				}
				c.send(msg)
			}
		}
	}
}

// renderFrame draws a gradient background with a gaussian light spot
// orbiting the image center, plus the enabled overlays.
func renderFrame(w, h int, phase float64, st cameraState) ([]byte, *stream.Centroid, error) {
	cx := float64(w)/2 + float64(w)/8*math.Cos(phase)
	cy := float64(h)/2 + float64(h)/8*math.Sin(phase)

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg := 40 * float64(x+y) / float64(w+h)
			dx, dy := float64(x)-cx, float64(y)-cy
			spot := 200 * math.Exp(-(dx*dx+dy*dy)/(2*spotSigma*spotSigma))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Min(255, bg+spot))})
		}
	}
	if st.crosshair {
		for x := 0; x < w; x++ {
			img.SetGray(x, h/2, color.Gray{Y: 255})
		}
		for y := 0; y < h; y++ {
			img.SetGray(w/2, y, color.Gray{Y: 255})
		}
	}
	if st.centroid {
		px, py := int(math.Round(cx)), int(math.Round(cy))
		for d := -2; d <= 2; d++ {
			img.SetGray(px+d, py, color.Gray{Y: 0})
			img.SetGray(px, py+d, color.Gray{Y: 0})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), &stream.Centroid{
		Success:   true,
		X:         math.Round(cx*100) / 100,
		Y:         math.Round(cy*100) / 100,
		Radius:    3 * spotSigma,
		Algorithm: st.algorithm,
	}, nil
}
