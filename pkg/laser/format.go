package laser

import (
	"strconv"
)

// FormatFrequency renders a frequency by magnitude: MHz and kHz with one
// decimal, Hz as an integer.
func FormatFrequency(hz float64) string {
	switch {
	case hz >= 1e6:
		return strconv.FormatFloat(hz/1e6, 'f', 1, 64) + " MHz"
	case hz >= 1e3:
		return strconv.FormatFloat(hz/1e3, 'f', 1, 64) + " kHz"
	default:
		return strconv.FormatFloat(hz, 'f', 0, 64) + " Hz"
	}
}
