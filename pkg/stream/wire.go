package stream

import "encoding/json"

// Message types exchanged on the streaming channel.
const (
	TypeStartStream  = "start_stream"
	TypeStopStream   = "stop_stream"
	TypeSetAlgorithm = "set_algorithm"
	TypeSetCentroid  = "set_centroid_display"
	TypeSetCrosshair = "set_crosshair_display"
	TypeAck          = "ack"
	TypeFrame        = "frame"
)

// Message is one JSON text frame.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type CommandPayload struct {
	CameraID  CameraID `json:"camera_id"`
	Algorithm string   `json:"algorithm,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
}

type AckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type FramePayload struct {
	CameraID CameraID  `json:"camera_id"`
	Data     []byte    `json:"data"`
	Centroid *Centroid `json:"centroid,omitempty"`
}

// NewMessage builds a message with a JSON encoded payload.
func NewMessage(typ, requestID string, payload any) (Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, RequestID: requestID, Payload: b}, nil
}
