package stream

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DecodeImageSize reads only the image header of a frame.
func DecodeImageSize(data []byte) (ImageSize, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageSize{}, err
	}
	return ImageSize{Width: cfg.Width, Height: cfg.Height}, nil
}
