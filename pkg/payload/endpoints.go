package payload

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
)

// Remote endpoints.
const (
	EndpointSetLaserPower           = "/api/set_laser_power"
	EndpointSetBlackBodyTemperature = "/api/set_black_body_temperature"
	EndpointSetVisibleLight         = "/api/set_visible_light"
	EndpointCompositeDeviceControl  = "/api/composite_device_control"
	EndpointPulsedLaserControl      = "/api/pulsed_laser_control"
	EndpointPulsedLaserTemperature  = "/api/pulsed_laser_temperature"
	EndpointDevicesStatus           = "/api/devices_status"
)

// CompositeDeviceRequest is the body of the unified composite-device endpoint.
type CompositeDeviceRequest struct {
	Device string `json:"device"`
	Value  int    `json:"value"`
}

// PulsedLaserRequest always carries the full parameter tuple plus the
// operation being performed.
type PulsedLaserRequest struct {
	Power      float64 `json:"power"`
	Frequency  float64 `json:"frequency"`
	PulseWidth float64 `json:"pulse_width"`
	Operation  string  `json:"operation"`
}

type temperatureData struct {
	Temperature float64 `json:"temperature"`
}

// ControlCompositeDevice sets a composite device value through the unified
// endpoint. A value of 0 turns the device off.
func (c *Client) ControlCompositeDevice(ctx context.Context, device string, value int) error {
	_, err := c.Post(ctx, EndpointCompositeDeviceControl, CompositeDeviceRequest{Device: device, Value: value})
	return err
}

// SetDeviceValue posts {param: value} to a per-device endpoint.
func (c *Client) SetDeviceValue(ctx context.Context, endpoint, param string, value int) error {
	_, err := c.Post(ctx, endpoint, map[string]int{param: value})
	return err
}

func (c *Client) ControlPulsedLaser(ctx context.Context, req PulsedLaserRequest) error {
	_, err := c.Post(ctx, EndpointPulsedLaserControl, req)
	return err
}

func (c *Client) PulsedLaserTemperature(ctx context.Context) (float64, error) {
	resp, err := c.Get(ctx, EndpointPulsedLaserTemperature)
	if err != nil {
		return 0, err
	}
	var d temperatureData
	if err := json.Unmarshal(resp.Data, &d); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to unmarshal pulsed laser temperature")
	}
	return d.Temperature, nil
}

// DevicesStatus returns the connection state of each device known to the
// payload controller.
func (c *Client) DevicesStatus(ctx context.Context) (map[string]bool, error) {
	resp, err := c.Get(ctx, EndpointDevicesStatus)
	if err != nil {
		return nil, err
	}
	status := map[string]bool{}
	if len(resp.Data) == 0 {
		return status, nil
	}
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal devices status")
	}
	return status, nil
}
