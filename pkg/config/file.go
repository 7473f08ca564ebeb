package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PayloadURL:                     ptr.To("http://127.0.0.1:5000"),
		StreamURL:                      ptr.To("ws://127.0.0.1:5000/camera"),
		ConnectTimeoutSeconds:          ptr.To(5),
		CommandTimeoutSeconds:          ptr.To(5),
		TemperaturePollIntervalSeconds: ptr.To(3),
		TemperaturePolling:             ptr.To(true),
		LegacyDeviceEndpoints:          ptr.To(false),
		DeviceDefaults: &RawDeviceDefaults{
			IndicationLaser: ptr.To(500),
			BlackBody:       ptr.To(20000),
			VisibleLight:    ptr.To(250),
		},
		RecordDatabase:     ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	env      *envOverrides
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
		env:      &envOverrides{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromConfig wraps an in-memory config. Environment overrides are not
// consulted.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		env:      &envOverrides{},
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

type RawDeviceDefaults struct {
	IndicationLaser *int `json:"indicationLaser,omitempty"`
	BlackBody       *int `json:"blackBody,omitempty"`
	VisibleLight    *int `json:"visibleLight,omitempty"`
}

type RawFileConfig struct {
	PayloadURL                     *string            `json:"payloadURL,omitempty"`
	StreamURL                      *string            `json:"streamURL,omitempty"`
	ConnectTimeoutSeconds          *int               `json:"connectTimeoutSeconds,omitempty"`
	CommandTimeoutSeconds          *int               `json:"commandTimeoutSeconds,omitempty"`
	TemperaturePollIntervalSeconds *int               `json:"temperaturePollIntervalSeconds,omitempty"`
	TemperaturePolling             *bool              `json:"temperaturePolling,omitempty"`
	LegacyDeviceEndpoints          *bool              `json:"legacyDeviceEndpoints,omitempty"`
	DeviceDefaults                 *RawDeviceDefaults `json:"deviceDefaults,omitempty"`
	RecordDatabase                 *string            `json:"recordDatabase,omitempty"`
	AllowNonRootAccess             *bool              `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	d := c.DeviceDefaults()
	rawConfig := &RawFileConfig{
		PayloadURL:                     ptr.To(c.PayloadURL()),
		StreamURL:                      ptr.To(c.StreamURL()),
		ConnectTimeoutSeconds:          ptr.To(int(c.ConnectTimeout() / time.Second)),
		CommandTimeoutSeconds:          ptr.To(int(c.CommandTimeout() / time.Second)),
		TemperaturePollIntervalSeconds: ptr.To(int(c.TemperaturePollInterval() / time.Second)),
		TemperaturePolling:             ptr.To(c.TemperaturePolling()),
		LegacyDeviceEndpoints:          ptr.To(c.LegacyDeviceEndpoints()),
		DeviceDefaults: &RawDeviceDefaults{
			IndicationLaser: ptr.To(d.IndicationLaser),
			BlackBody:       ptr.To(d.BlackBody),
			VisibleLight:    ptr.To(d.VisibleLight),
		},
		RecordDatabase:     ptr.To(c.RecordDatabase()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

func (f *File) PayloadURL() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.env.PayloadURL != "" {
		return f.env.PayloadURL
	}
	return strings.TrimRight(ptr.Deref(f.c.PayloadURL, *defaultFileConfig.PayloadURL), "/")
}

func (f *File) StreamURL() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.env.StreamURL != "" {
		return f.env.StreamURL
	}
	return ptr.Deref(f.c.StreamURL, *defaultFileConfig.StreamURL)
}

func (f *File) ConnectTimeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return secondsOrDefault(f.c.ConnectTimeoutSeconds, *defaultFileConfig.ConnectTimeoutSeconds)
}

func (f *File) CommandTimeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return secondsOrDefault(f.c.CommandTimeoutSeconds, *defaultFileConfig.CommandTimeoutSeconds)
}

func (f *File) TemperaturePollInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return secondsOrDefault(f.c.TemperaturePollIntervalSeconds, *defaultFileConfig.TemperaturePollIntervalSeconds)
}

func (f *File) TemperaturePolling() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.TemperaturePolling, *defaultFileConfig.TemperaturePolling)
}

func (f *File) LegacyDeviceEndpoints() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.LegacyDeviceEndpoints, *defaultFileConfig.LegacyDeviceEndpoints)
}

func (f *File) DeviceDefaults() DeviceDefaults {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	def := defaultFileConfig.DeviceDefaults
	raw := f.c.DeviceDefaults
	if raw == nil {
		raw = &RawDeviceDefaults{}
	}

	return DeviceDefaults{
		IndicationLaser: ptr.Deref(raw.IndicationLaser, *def.IndicationLaser),
		BlackBody:       ptr.Deref(raw.BlackBody, *def.BlackBody),
		VisibleLight:    ptr.Deref(raw.VisibleLight, *def.VisibleLight),
	}
}

func (f *File) RecordDatabase() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.env.RecordDatabase != "" {
		return f.env.RecordDatabase
	}
	return ptr.Deref(f.c.RecordDatabase, *defaultFileConfig.RecordDatabase)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) SetPayloadURL(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PayloadURL = &s
}

func (f *File) SetStreamURL(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.StreamURL = &s
}

func (f *File) SetTemperaturePolling(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TemperaturePolling = &b
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, err := parseEnvOverrides()
	if err != nil {
		return err
	}
	f.env = o

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"payloadURL":              f.PayloadURL(),
		"streamURL":               f.StreamURL(),
		"connectTimeout":          f.ConnectTimeout().String(),
		"commandTimeout":          f.CommandTimeout().String(),
		"temperaturePollInterval": f.TemperaturePollInterval().String(),
		"temperaturePolling":      f.TemperaturePolling(),
		"legacyDeviceEndpoints":   f.LegacyDeviceEndpoints(),
		"recordDatabase":          f.RecordDatabase(),
		"allowNonRootAccess":      f.AllowNonRootAccess(),
	}
}

func secondsOrDefault(p *int, def int) time.Duration {
	v := ptr.Deref(p, def)
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
