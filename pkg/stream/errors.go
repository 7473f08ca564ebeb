package stream

import "errors"

var (
	ErrConnectTimeout      = errors.New("stream channel connect timed out")
	ErrNotConnected        = errors.New("stream channel not connected")
	ErrUnknownCamera       = errors.New("unknown camera")
	ErrUnknownAlgorithm    = errors.New("unknown centroid algorithm")
	ErrUnknownOverlay      = errors.New("unknown overlay")
	ErrStreamStartFailed   = errors.New("stream start failed")
	ErrStreamStopFailed    = errors.New("stream stop failed")
	ErrNotStreaming        = errors.New("camera is not streaming")
	ErrOverlayNotForwarded = errors.New("overlay toggle not forwarded, stream channel not connected")
	ErrCommandRejected     = errors.New("stream command rejected")
)
