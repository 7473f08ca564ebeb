package stream

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestStaleDecodeDoesNotOverwriteNewerSize(t *testing.T) {
	s := NewCameraSession(Pod)
	s.markStreaming()

	older, ok := s.applyFrame([]byte("a"), nil)
	require.True(t, ok)
	newer, ok := s.applyFrame([]byte("b"), nil)
	require.True(t, ok)

	assert.True(t, s.applySize(newer, ImageSize{Width: 640, Height: 480}))
	assert.False(t, s.applySize(older, ImageSize{Width: 320, Height: 240}))
	assert.Equal(t, ImageSize{Width: 640, Height: 480}, s.Snapshot().ImageSize)
}

func TestDecodeOvertakenByNewerFrameIsDiscarded(t *testing.T) {
	s := NewCameraSession(Reference)
	s.markStreaming()

	first, _ := s.applyFrame([]byte("a"), nil)
	second, _ := s.applyFrame([]byte("b"), nil)

	assert.False(t, s.applySize(first, ImageSize{Width: 320, Height: 240}), "frame b arrived before a was decoded")
	assert.False(t, s.Snapshot().ImageSize.Valid())
	assert.True(t, s.applySize(second, ImageSize{Width: 640, Height: 480}))
}

func TestStopFencesInFlightDecode(t *testing.T) {
	s := NewCameraSession(IR)
	s.markStreaming()
	seq, _ := s.applyFrame([]byte("a"), nil)

	s.markStopped()
	s.markStreaming()
	assert.False(t, s.applySize(seq, ImageSize{Width: 1, Height: 1}))
	assert.False(t, s.Snapshot().ImageSize.Valid())
}

func TestStopResetsFrameAndCentroid(t *testing.T) {
	s := NewCameraSession(SWIR)
	s.markStreaming()
	seq, _ := s.applyFrame([]byte{1, 2, 3}, &Centroid{Success: true, X: 10, Y: 20, Radius: 3, Algorithm: "gray"})
	s.applySize(seq, ImageSize{Width: 100, Height: 50})

	s.markStopped()
	snap := s.Snapshot()
	assert.False(t, snap.Streaming)
	assert.Nil(t, snap.Frame)
	assert.False(t, snap.Centroid.Success)
	assert.Equal(t, ImageSize{}, snap.ImageSize)
}

func TestFramesDroppedWhenNotStreaming(t *testing.T) {
	s := NewCameraSession(Visible)
	_, ok := s.applyFrame([]byte("x"), nil)
	assert.False(t, ok)
	assert.Nil(t, s.Snapshot().Frame)
}

func TestSnapshotCopiesFrame(t *testing.T) {
	s := NewCameraSession(Pod)
	s.markStreaming()
	s.applyFrame([]byte{1, 2, 3}, nil)

	snap := s.Snapshot()
	snap.Frame[0] = 9
	assert.Equal(t, byte(1), s.Snapshot().Frame[0])
}

func TestDecodeImageSize(t *testing.T) {
	size, err := DecodeImageSize(pngFrame(t, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, ImageSize{Width: 4, Height: 3}, size)

	_, err = DecodeImageSize([]byte("not an image"))
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	id, err := ParseCameraID(" SWIR ")
	require.NoError(t, err)
	assert.Equal(t, SWIR, id)

	_, err = ParseCameraID("thermal")
	assert.ErrorIs(t, err, ErrUnknownCamera)

	k, err := ParseOverlayKind("Crosshair")
	require.NoError(t, err)
	assert.Equal(t, OverlayCrosshair, k)
	_, err = ParseOverlayKind("grid")
	assert.ErrorIs(t, err, ErrUnknownOverlay)

	assert.True(t, ValidAlgorithm("gaussian"))
	assert.False(t, ValidAlgorithm("median"))
}
