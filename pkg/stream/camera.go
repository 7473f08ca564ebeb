package stream

import (
	"fmt"
	"strings"
	"sync"
)

// CameraID names one logical camera role.
type CameraID string

const (
	// Pod is the close-range view of the payload used for coarse
	// alignment.
	Pod CameraID = "pod"
	// Reference is the collimator reference camera.
	Reference CameraID = "reference"
	IR        CameraID = "ir"
	Visible   CameraID = "visible"
	SWIR      CameraID = "swir"
)

// Cameras is every known camera, in display order.
var Cameras = []CameraID{Pod, Reference, IR, Visible, SWIR}

func ParseCameraID(s string) (CameraID, error) {
	id := CameraID(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Cameras {
		if c == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCamera, s)
}

// Algorithms are the centroid algorithms the payload controller accepts.
var Algorithms = []string{"weighted", "gray", "gaussian", "contour"}

// DefaultAlgorithm is what the payload controller uses until told otherwise.
const DefaultAlgorithm = "weighted"

func ValidAlgorithm(name string) bool {
	for _, a := range Algorithms {
		if a == name {
			return true
		}
	}
	return false
}

// OverlayKind selects one of the overlays drawn into a frame.
type OverlayKind string

const (
	OverlayCentroid  OverlayKind = "centroid"
	OverlayCrosshair OverlayKind = "crosshair"
)

func ParseOverlayKind(s string) (OverlayKind, error) {
	switch k := OverlayKind(strings.ToLower(s)); k {
	case OverlayCentroid, OverlayCrosshair:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOverlay, s)
}

type Centroid struct {
	Success   bool    `json:"success"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Algorithm string  `json:"algorithm,omitempty"`
}

type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s ImageSize) Valid() bool { return s.Width > 0 && s.Height > 0 }

type Overlay struct {
	DrawCentroid  bool `json:"drawCentroid"`
	DrawCrosshair bool `json:"drawCrosshair"`
}

// Snapshot is a copy of a camera session's state.
type Snapshot struct {
	Camera    CameraID  `json:"camera"`
	Streaming bool      `json:"streaming"`
	Frame     []byte    `json:"-"`
	FrameSeq  uint64    `json:"frameSeq"`
	Centroid  Centroid  `json:"centroid"`
	ImageSize ImageSize `json:"imageSize"`
	Overlay   Overlay   `json:"overlay"`
	Algorithm string    `json:"algorithm"`
}

// CameraSession tracks the state of one camera as reported by the payload
// controller. Every frame gets a sequence number; an image size decoded from
// frame n is only applied while n is still the latest frame.
type CameraSession struct {
	id CameraID

	mu        sync.Mutex
	streaming bool
	frame     []byte
	frameSeq  uint64
	// stopSeq is the frame sequence at the last stop. Decodes of frames at
	// or below it are discarded.
	stopSeq   uint64
	centroid  Centroid
	size      ImageSize
	overlay   Overlay
	algorithm string
}

func NewCameraSession(id CameraID) *CameraSession {
	return &CameraSession{
		id:        id,
		overlay:   Overlay{DrawCentroid: true, DrawCrosshair: true},
		algorithm: DefaultAlgorithm,
	}
}

func (s *CameraSession) ID() CameraID { return s.id }

func (s *CameraSession) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *CameraSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frame []byte
	if s.frame != nil {
		frame = make([]byte, len(s.frame))
		copy(frame, s.frame)
	}
	return Snapshot{
		Camera:    s.id,
		Streaming: s.streaming,
		Frame:     frame,
		FrameSeq:  s.frameSeq,
		Centroid:  s.centroid,
		ImageSize: s.size,
		Overlay:   s.overlay,
		Algorithm: s.algorithm,
	}
}

func (s *CameraSession) markStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = true
}

// markStopped clears the frame, centroid and image size. Decodes still in
// flight for earlier frames are fenced off.
func (s *CameraSession) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	s.frame = nil
	s.centroid = Centroid{}
	s.size = ImageSize{}
	s.stopSeq = s.frameSeq
}

// applyFrame stores a frame and returns its sequence number. Frames for a
// camera that is not streaming are dropped.
func (s *CameraSession) applyFrame(data []byte, c *Centroid) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return 0, false
	}
	s.frameSeq++
	s.frame = data
	if c != nil {
		s.centroid = *c
	}
	return s.frameSeq, true
}

// applySize stores the size decoded from frame seq unless a newer frame has
// arrived since.
func (s *CameraSession) applySize(seq uint64, size ImageSize) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming || seq != s.frameSeq || seq <= s.stopSeq {
		return false
	}
	s.size = size
	return true
}

func (s *CameraSession) setAlgorithm(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.algorithm = name
}

func (s *CameraSession) setOverlay(kind OverlayKind, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case OverlayCentroid:
		s.overlay.DrawCentroid = enabled
	case OverlayCrosshair:
		s.overlay.DrawCrosshair = enabled
	}
}
