// Package clarity gives a coarse quality verdict for an invoice image from its
// size and mean brightness. The thresholds are fixed configuration values, not a
// calibrated metric.
package clarity

import (
	"bytes"
	"image"
	"image/color"

	"invoice-extractor/api/internal/imaging"
)

type Verdict string

const (
	Good  Verdict = "Good"
	Poor  Verdict = "Poor"
	Error Verdict = "Error"
)

// Threshold defaults. An image is Good only when it is strictly above all three.
const (
	DefaultMinWidth      = 500
	DefaultMinHeight     = 500
	DefaultMinBrightness = 100.0
)

type Thresholds struct {
	MinWidth      int     `mapstructure:"min_width" json:"min_width"`
	MinHeight     int     `mapstructure:"min_height" json:"min_height"`
	MinBrightness float64 `mapstructure:"min_brightness" json:"min_brightness"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinWidth:      DefaultMinWidth,
		MinHeight:     DefaultMinHeight,
		MinBrightness: DefaultMinBrightness,
	}
}

// Record is the clarity section of an extraction document.
type Record struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Brightness float64 `json:"brightness"`
	Feedback   Verdict `json:"clarity_feedback"`
}

func errorRecord() Record {
	return Record{Feedback: Error}
}

type Assessor struct {
	th Thresholds
}

func New(th Thresholds) *Assessor {
	return &Assessor{th: th}
}

// Verdict applies the threshold policy to already measured values.
func (a *Assessor) Verdict(width, height int, brightness float64) Verdict {
	if width > a.th.MinWidth && height > a.th.MinHeight && brightness > a.th.MinBrightness {
		return Good
	}
	return Poor
}

// AssessBytes decodes data and assesses it. Undecodable data yields an Error record.
func (a *Assessor) AssessBytes(data []byte) Record {
	img, _, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return errorRecord()
	}
	return a.Assess(img)
}

// Assess measures img. A nil or empty image, or any failure reading pixels,
// yields an Error record with zeroed metrics.
func (a *Assessor) Assess(img image.Image) (rec Record) {
	defer func() {
		if recover() != nil {
			rec = errorRecord()
		}
	}()
	if img == nil {
		return errorRecord()
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return errorRecord()
	}

	brightness := meanLuma(img)
	return Record{
		Width:      w,
		Height:     h,
		Brightness: brightness,
		Feedback:   a.Verdict(w, h, brightness),
	}
}

// meanLuma averages the 8-bit gray value (ITU-R 601 weights) over every pixel.
func meanLuma(img image.Image) float64 {
	b := img.Bounds()
	var sum uint64
	switch m := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[(y-b.Min.Y)*m.Stride : (y-b.Min.Y)*m.Stride+b.Dx()]
			for _, p := range row {
				sum += uint64(p)
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				sum += uint64(g.Y)
			}
		}
	}
	return float64(sum) / float64(b.Dx()*b.Dy())
}
