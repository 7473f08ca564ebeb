package procedure

import (
	"fmt"
	"strings"

	"github.com/atelab/opticalign/pkg/stream"
)

type AxisType string

const (
	Transmit AxisType = "transmit"
	Receive  AxisType = "receive"
)

type Spectrum string

const (
	SpectrumIR      Spectrum = "ir"
	SpectrumVisible Spectrum = "visible"
	SpectrumLaser   Spectrum = "laser"
)

// ReferenceAxis is the optical path and band under test. It decides which
// cameras are relevant.
type ReferenceAxis struct {
	Type     AxisType `json:"type"`
	Spectrum Spectrum `json:"spectrum"`
}

var DefaultAxis = ReferenceAxis{Type: Transmit, Spectrum: SpectrumIR}

// relevantCameras maps an axis branch to its cameras. The first one is the
// reference camera of the branch.
var relevantCameras = map[ReferenceAxis][]stream.CameraID{
	{Transmit, SpectrumIR}:      {stream.Reference},
	{Transmit, SpectrumVisible}: {stream.Reference},
	{Transmit, SpectrumLaser}:   {stream.SWIR},
	{Receive, SpectrumIR}:       {stream.IR},
	{Receive, SpectrumVisible}:  {stream.Visible},
	{Receive, SpectrumLaser}:    {stream.SWIR},
}

func ParseAxis(typ, spectrum string) (ReferenceAxis, error) {
	a := ReferenceAxis{
		Type:     AxisType(strings.ToLower(strings.TrimSpace(typ))),
		Spectrum: Spectrum(strings.ToLower(strings.TrimSpace(spectrum))),
	}
	if !a.Valid() {
		return ReferenceAxis{}, fmt.Errorf("%w: %s/%s", ErrInvalidAxis, typ, spectrum)
	}
	return a, nil
}

func (a ReferenceAxis) Valid() bool {
	_, ok := relevantCameras[a]
	return ok
}

// Cameras returns the cameras relevant to the axis branch.
func (a ReferenceAxis) Cameras() []stream.CameraID {
	return append([]stream.CameraID(nil), relevantCameras[a]...)
}

// ReferenceCamera is the camera whose centroid a completed test record
// captures.
func (a ReferenceAxis) ReferenceCamera() stream.CameraID {
	if cams := relevantCameras[a]; len(cams) > 0 {
		return cams[0]
	}
	return ""
}

func (a ReferenceAxis) String() string {
	return string(a.Type) + "/" + string(a.Spectrum)
}
