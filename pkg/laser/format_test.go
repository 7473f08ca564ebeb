package laser

import "testing"

func TestFormatFrequency(t *testing.T) {
	tests := []struct {
		hz   float64
		want string
	}{
		{15000, "15.0 kHz"},
		{950, "950 Hz"},
		{0, "0 Hz"},
		{1000, "1.0 kHz"},
		{999.6, "1000 Hz"},
		{2.5e6, "2.5 MHz"},
		{1e6, "1.0 MHz"},
	}
	for _, tt := range tests {
		if got := FormatFrequency(tt.hz); got != tt.want {
			t.Errorf("FormatFrequency(%v) = %q, want %q", tt.hz, got, tt.want)
		}
	}
}
