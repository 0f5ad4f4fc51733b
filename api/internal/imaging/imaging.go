// Package imaging decodes uploaded invoice images and prepares the payload sent to the model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Model payload size used by the storage-triggered extractor.
const (
	PayloadWidth  = 800
	PayloadHeight = 800
)

var ErrEmptyImage = errors.New("empty image")

// Decode reads any registered format (png, jpeg, gif, bmp, tiff, webp).
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}
	// image.Decode picks a decoder by magic prefix; try the strict ones by signature
	// in case the header is slightly off.
	if strict, ferr := decodeStrict(data); ferr == nil {
		return strict, formatOf(data), nil
	}
	return nil, "", fmt.Errorf("decode image: %w", err)
}

func decodeStrict(b []byte) (image.Image, error) {
	switch formatOf(b) {
	case "jpeg":
		return jpeg.Decode(bytes.NewReader(b))
	case "png":
		return png.Decode(bytes.NewReader(b))
	}
	return nil, image.ErrFormat
}

func formatOf(b []byte) string {
	switch SniffMime(b) {
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	}
	return ""
}

// Resize scales img to exactly w×h, ignoring aspect ratio.
func Resize(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PreparePayload decodes data, resizes it to w×h and re-encodes it as PNG.
// It returns the decoded source image too, so callers can inspect the original.
func PreparePayload(data []byte, w, h int) (src image.Image, payload []byte, err error) {
	src, _, err = Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	payload, err = EncodePNG(Resize(src, w, h))
	if err != nil {
		return nil, nil, err
	}
	return src, payload, nil
}
