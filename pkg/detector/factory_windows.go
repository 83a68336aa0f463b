//go:build windows

package detector

import (
	"github.com/keytally/keytally/pkg/integrations/win32"
	"github.com/keytally/keytally/pkg/window"
)

// New returns the Win32 detector.
func New() (window.Detector, error) {
	return win32.NewDetector(), nil
}
