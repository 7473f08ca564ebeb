package laser

import (
	"sync"
	"time"
)

// Sample is one temperature reading.
type Sample struct {
	At           time.Time `json:"at"`
	TemperatureC float64   `json:"temperatureC"`
}

// TemperatureRecorder records the last N temperature readings.
type TemperatureRecorder struct {
	MaxRecordCount int
	samples        []Sample
	mu             *sync.Mutex
}

// NewTemperatureRecorder returns a new TemperatureRecorder.
func NewTemperatureRecorder(maxRecordCount int) *TemperatureRecorder {
	return &TemperatureRecorder{
		MaxRecordCount: maxRecordCount,
		samples:        make([]Sample, 0, maxRecordCount),
		mu:             &sync.Mutex{},
	}
}

// Add adds a new reading.
func (r *TemperatureRecorder) Add(at time.Time, c float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) >= r.MaxRecordCount {
		r.samples = r.samples[1:]
	}
	// Strip monotonic clock reading.
	r.samples = append(r.samples, Sample{At: at.Round(0), TemperatureC: c})
}

// Latest returns the newest reading.
func (r *TemperatureRecorder) Latest() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Samples returns a copy of the readings, oldest first.
func (r *TemperatureRecorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// SamplesIn returns the readings taken within the last duration.
func (r *TemperatureRecorder) SamplesIn(last time.Duration) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Sample
	for i := len(r.samples) - 1; i >= 0; i-- {
		if time.Since(r.samples[i].At) > last {
			break
		}
		out = append([]Sample{r.samples[i]}, out...)
	}
	return out
}

// Clear drops every reading.
func (r *TemperatureRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = r.samples[:0]
}
