package events

import "encoding/json"

// Event name constants
const (
	NoticeEvent        = "notice"
	StepChanged        = "step.changed"
	AxisChanged        = "axis.changed"
	StreamChanged      = "camera.stream"
	FrameArrived       = "camera.frame"
	DeviceChanged      = "device.changed"
	PulsedLaserChanged = "laser.changed"
	TemperatureSampled = "laser.temperature"
	RecordChanged      = "record.changed"
)

// Level is the severity of an operator notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
	Ts   int64           `json:"ts"`
}

// Notice is the payload of NoticeEvent.
type Notice struct {
	Level   Level  `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

type StepChangedEvent struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Name string `json:"name"`
}

type AxisChangedEvent struct {
	Type     string `json:"type"`
	Spectrum string `json:"spectrum"`
}

type StreamChangedEvent struct {
	Camera    string `json:"camera"`
	Streaming bool   `json:"streaming"`
}

// FrameArrivedEvent carries frame metadata only; the image bytes are served
// by the frame endpoint.
type FrameArrivedEvent struct {
	Camera    string  `json:"camera"`
	Seq       uint64  `json:"seq"`
	Bytes     int     `json:"bytes"`
	Centroid  bool    `json:"centroid"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Radius    float64 `json:"radius,omitempty"`
	Algorithm string  `json:"algorithm,omitempty"`
}

type DeviceChangedEvent struct {
	Kind    string `json:"kind"`
	On      bool   `json:"on"`
	Value   int    `json:"value"`
	Display string `json:"display"`
}

type PulsedLaserChangedEvent struct {
	On        bool    `json:"on"`
	Operation string  `json:"operation"`
	Power     float64 `json:"power"`
	Frequency float64 `json:"frequency"`
	Width     float64 `json:"pulseWidth"`
}

type TemperatureSampledEvent struct {
	TemperatureC float64 `json:"temperatureC"`
}

type RecordChangedEvent struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.StepChangedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
