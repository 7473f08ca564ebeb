package config

import (
	"github.com/caarlos0/env/v11"
	pkgerrors "github.com/pkg/errors"
)

// envOverrides are applied on top of the file config. Empty values leave the
// file config untouched.
type envOverrides struct {
	PayloadURL     string `env:"OPTICALIGN_PAYLOAD_URL"`
	StreamURL      string `env:"OPTICALIGN_STREAM_URL"`
	RecordDatabase string `env:"OPTICALIGN_RECORD_DATABASE"`
}

func parseEnvOverrides() (*envOverrides, error) {
	o := &envOverrides{}
	if err := env.Parse(o); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse environment overrides")
	}
	return o, nil
}
