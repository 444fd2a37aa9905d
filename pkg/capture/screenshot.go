//go:build !noscreenshot
// +build !noscreenshot

// Package capture grabs and encodes screen images for the agent.
package capture

import (
	"bytes"
	"errors"
	"image/jpeg"
	"image/png"

	"github.com/kbinani/screenshot"

	"screenrelay/pkg/protocol"
)

// ErrNoDisplay is returned when no active display can be captured
var ErrNoDisplay = errors.New("no active displays found")

// ScreenCapturer captures the primary display and encodes it. Quality
// below 100 selects JPEG, 100 selects lossless PNG.
type ScreenCapturer struct {
	Quality int
}

// NewScreenCapturer creates a capturer with the given JPEG quality.
// Zero quality means the default of 85.
func NewScreenCapturer(quality int) *ScreenCapturer {
	if quality <= 0 {
		quality = 85
	}
	return &ScreenCapturer{Quality: quality}
}

// Capture grabs the primary display and returns the encoded image with
// its metadata.
func (sc *ScreenCapturer) Capture() ([]byte, *protocol.CaptureMeta, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, nil, ErrNoDisplay
	}

	bounds := screenshot.GetDisplayBounds(0)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, nil, err
	}

	meta := &protocol.CaptureMeta{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	var buf bytes.Buffer
	if sc.Quality < 100 {
		meta.Format = "jpg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: sc.Quality})
	} else {
		meta.Format = "png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, nil, err
	}

	return buf.Bytes(), meta, nil
}
