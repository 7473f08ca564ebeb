package device

import (
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/payload"
)

// Kind is one of the composite analog devices.
type Kind string

const (
	IndicationLaser Kind = "indicationLaser"
	BlackBody       Kind = "blackBody"
	VisibleLight    Kind = "visibleLight"
)

// Kinds lists every composite device in display order.
var Kinds = []Kind{IndicationLaser, BlackBody, VisibleLight}

// kindSpec is the dispatch entry of a device kind.
type kindSpec struct {
	// Endpoint and Param address the per-device endpoint.
	Endpoint string
	Param    string
	Max      int
	// Scale converts a raw value to its display unit.
	Scale  float64
	Unit   string
	Digits int
}

var dispatch = map[Kind]kindSpec{
	IndicationLaser: {
		Endpoint: payload.EndpointSetLaserPower,
		Param:    "power",
		Max:      1000,
		Scale:    10,
		Unit:     "%",
		Digits:   -1,
	},
	BlackBody: {
		Endpoint: payload.EndpointSetBlackBodyTemperature,
		Param:    "temperature",
		Max:      40000,
		Scale:    1000,
		Unit:     " °C",
		Digits:   2,
	},
	VisibleLight: {
		Endpoint: payload.EndpointSetVisibleLight,
		Param:    "light",
		Max:      500,
		Scale:    5,
		Unit:     "%",
		Digits:   -1,
	},
}

// ParseKind accepts the canonical kind names and the short CLI aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indicationlaser", "laser", "indicator":
		return IndicationLaser, nil
	case "blackbody", "black-body", "bb":
		return BlackBody, nil
	case "visiblelight", "visible", "visible-light", "light":
		return VisibleLight, nil
	}
	return "", pkgerrors.Wrapf(ErrUnknownKind, "%q", s)
}

func (k Kind) valid() bool {
	_, ok := dispatch[k]
	return ok
}

// DefaultValue returns the raw value a device of kind k is switched on with
// when it has no remembered value.
func DefaultValue(k Kind, d config.DeviceDefaults) int {
	switch k {
	case IndicationLaser:
		return d.IndicationLaser
	case BlackBody:
		return d.BlackBody
	case VisibleLight:
		return d.VisibleLight
	}
	return 0
}

// Format renders a raw value in the display unit of the device:
// indicator laser raw/10 percent, black body raw/1000 °C with 2 decimals,
// visible light raw/5 percent.
func Format(k Kind, raw int) string {
	s, ok := dispatch[k]
	if !ok {
		return strconv.Itoa(raw)
	}
	v := float64(raw) / s.Scale
	return strconv.FormatFloat(v, 'f', s.Digits, 64) + s.Unit
}
