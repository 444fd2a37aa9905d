//go:build noscreenshot
// +build noscreenshot

package capture

import (
	"errors"

	"screenrelay/pkg/protocol"
)

// ErrNoDisplay is returned when no active display can be captured
var ErrNoDisplay = errors.New("no active displays found")

var errUnsupported = errors.New("screen capture not supported in this build")

// ScreenCapturer stub for builds without display access
type ScreenCapturer struct {
	Quality int
}

func NewScreenCapturer(quality int) *ScreenCapturer {
	if quality <= 0 {
		quality = 85
	}
	return &ScreenCapturer{Quality: quality}
}

func (sc *ScreenCapturer) Capture() ([]byte, *protocol.CaptureMeta, error) {
	return nil, nil, errUnsupported
}
