//go:build !windows

package detector

import (
	"fmt"

	"github.com/keytally/keytally/pkg/integrations/x11"
	"github.com/keytally/keytally/pkg/window"
)

// New connects to the X server when one is reachable. Wayland sessions work
// through XWayland when DISPLAY is exported.
func New() (window.Detector, error) {
	if DetectDisplayServer() == "unknown" {
		return nil, ErrNoIntegration
	}

	d, err := x11.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIntegration, err)
	}
	return d, nil
}
