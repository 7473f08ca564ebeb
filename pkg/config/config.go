package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DeviceDefaults are the raw values a composite device is switched on with
// when it has never been set before.
type DeviceDefaults struct {
	IndicationLaser int `json:"indicationLaser"`
	BlackBody       int `json:"blackBody"`
	VisibleLight    int `json:"visibleLight"`
}

type Config interface {
	PayloadURL() string
	StreamURL() string
	ConnectTimeout() time.Duration
	CommandTimeout() time.Duration
	TemperaturePollInterval() time.Duration
	TemperaturePolling() bool
	LegacyDeviceEndpoints() bool
	DeviceDefaults() DeviceDefaults
	RecordDatabase() string
	AllowNonRootAccess() bool

	SetPayloadURL(string)
	SetStreamURL(string)
	SetTemperaturePolling(bool)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
