package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/device"
	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/laser"
	"github.com/atelab/opticalign/pkg/procedure"
	"github.com/atelab/opticalign/pkg/records"
	"github.com/atelab/opticalign/pkg/stream"
)

type AxisRequest struct {
	Type     string `json:"type"`
	Spectrum string `json:"spectrum"`
}

type AlgorithmRequest struct {
	Algorithm string `json:"algorithm"`
}

type OverlayRequest struct {
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

// DeviceRequest toggles the device when Value is nil.
type DeviceRequest struct {
	Value *int `json:"value,omitempty"`
}

// PulsedLaserRequest changes the pulsed laser. Parameters left nil keep
// their committed value.
type PulsedLaserRequest struct {
	Operation    string   `json:"operation"`
	Power        *float64 `json:"power,omitempty"`
	FrequencyHz  *float64 `json:"frequencyHz,omitempty"`
	PulseWidthNs *float64 `json:"pulseWidthNs,omitempty"`
}

// CameraResponse is the camera state after a camera command. Warning is set
// when the command was only partly applied.
type CameraResponse struct {
	Camera  stream.Snapshot `json:"camera"`
	Warning string          `json:"warning,omitempty"`
}

type TemperatureResponse struct {
	TemperatureC float64 `json:"temperatureC"`
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var v string
	if err := c.Get(ctx, "/version", &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return v, nil
}

func (c *Client) GetConfig(ctx context.Context) (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.Get(ctx, "/config", &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return &conf, nil
}

func (c *Client) GetStatus(ctx context.Context) (*procedure.Snapshot, error) {
	var s procedure.Snapshot
	if err := c.Get(ctx, "/status", &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get session status")
	}
	return &s, nil
}

func (c *Client) NextStep(ctx context.Context) (*procedure.Transition, error) {
	return c.step(ctx, "/step/next")
}

func (c *Client) PrevStep(ctx context.Context) (*procedure.Transition, error) {
	return c.step(ctx, "/step/prev")
}

func (c *Client) step(ctx context.Context, path string) (*procedure.Transition, error) {
	var t procedure.Transition
	if err := c.Post(ctx, path, nil, &t); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to change step")
	}
	return &t, nil
}

func (c *Client) SetAxis(ctx context.Context, axisType, spectrum string) (*procedure.AxisChange, error) {
	var a procedure.AxisChange
	if err := c.Put(ctx, "/axis", AxisRequest{Type: axisType, Spectrum: spectrum}, &a); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set reference axis")
	}
	return &a, nil
}

func (c *Client) StartStream(ctx context.Context, camera string) (*CameraResponse, error) {
	return c.camera(ctx, http.MethodPost, camera, "start", nil)
}

func (c *Client) StopStream(ctx context.Context, camera string) (*CameraResponse, error) {
	return c.camera(ctx, http.MethodPost, camera, "stop", nil)
}

func (c *Client) SetAlgorithm(ctx context.Context, camera, algorithm string) (*CameraResponse, error) {
	return c.camera(ctx, http.MethodPut, camera, "algorithm", AlgorithmRequest{Algorithm: algorithm})
}

func (c *Client) SetOverlay(ctx context.Context, camera, kind string, enabled bool) (*CameraResponse, error) {
	return c.camera(ctx, http.MethodPut, camera, "overlay", OverlayRequest{Kind: kind, Enabled: enabled})
}

func (c *Client) camera(ctx context.Context, method, camera, action string, data any) (*CameraResponse, error) {
	b, err := c.Send(ctx, method, "/cameras/"+url.PathEscape(camera)+"/"+action, data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to %s camera %s", action, camera)
	}
	var r CameraResponse
	if err := decode(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GetCamera(ctx context.Context, camera string) (*stream.Snapshot, error) {
	var s stream.Snapshot
	if err := c.Get(ctx, "/cameras/"+url.PathEscape(camera), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get camera %s", camera)
	}
	return &s, nil
}

// GetFrame returns the latest encoded frame of a camera.
func (c *Client) GetFrame(ctx context.Context, camera string) ([]byte, error) {
	b, err := c.Send(ctx, http.MethodGet, "/cameras/"+url.PathEscape(camera)+"/frame", nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get frame of camera %s", camera)
	}
	return b, nil
}

// ControlDevice toggles a composite device when value is nil, otherwise
// adjusts it.
func (c *Client) ControlDevice(ctx context.Context, kind string, value *int) (*device.State, error) {
	var st device.State
	if err := c.Post(ctx, "/devices/"+url.PathEscape(kind), DeviceRequest{Value: value}, &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to control %s", kind)
	}
	return &st, nil
}

func (c *Client) ControlPulsedLaser(ctx context.Context, req PulsedLaserRequest) (*laser.State, error) {
	var st laser.State
	if err := c.Post(ctx, "/pulsed-laser", req, &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to control the pulsed laser")
	}
	return &st, nil
}

func (c *Client) GetPulsedLaserTemperature(ctx context.Context) (float64, error) {
	var r TemperatureResponse
	if err := c.Get(ctx, "/pulsed-laser/temperature", &r); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get pulsed laser temperature")
	}
	return r.TemperatureC, nil
}

func (c *Client) GetTemperatureHistory(ctx context.Context) ([]laser.Sample, error) {
	var samples []laser.Sample
	if err := c.Get(ctx, "/pulsed-laser/history", &samples); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get temperature history")
	}
	return samples, nil
}

func (c *Client) AddRecord(ctx context.Context) (*procedure.TestRecord, error) {
	var r procedure.TestRecord
	if err := c.Post(ctx, "/records", nil, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to add test record")
	}
	return &r, nil
}

func (c *Client) CompleteRecord(ctx context.Context, index int) (*procedure.TestRecord, error) {
	var r procedure.TestRecord
	if err := c.Post(ctx, "/records/"+strconv.Itoa(index)+"/complete", nil, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to complete test record %d", index)
	}
	return &r, nil
}

func (c *Client) GetRecords(ctx context.Context) ([]procedure.TestRecord, error) {
	var rs []procedure.TestRecord
	if err := c.Get(ctx, "/records", &rs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get test records")
	}
	return rs, nil
}

// GetRecordHistory lists persisted records. An empty session lists every
// session.
func (c *Client) GetRecordHistory(ctx context.Context, session string) ([]records.Record, error) {
	path := "/records/history"
	if session != "" {
		path += "?session=" + url.QueryEscape(session)
	}
	var rs []records.Record
	if err := c.Get(ctx, path, &rs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get record history")
	}
	return rs, nil
}

// GetPayloadDevices returns the connection status the payload controller
// reports for each device.
func (c *Client) GetPayloadDevices(ctx context.Context) (map[string]bool, error) {
	var m map[string]bool
	if err := c.Get(ctx, "/payload/devices", &m); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get payload device status")
	}
	return m, nil
}

// SubscribeEvents streams daemon events until ctx is done or the daemon
// closes the stream. Frame events are only sent when frames is set.
func (c *Client) SubscribeEvents(ctx context.Context, frames bool) (<-chan events.Event, error) {
	path := "http://unix/events"
	if frames {
		path += "?frames=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived, so the client timeout does not apply.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("got %d subscribing to events", resp.StatusCode)
	}

	ch := make(chan events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
				logrus.WithError(err).Debug("skipping malformed event")
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
