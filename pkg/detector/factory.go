package detector

import (
	"errors"
	"os"

	"github.com/keytally/keytally/pkg/integrations/process"
	"github.com/keytally/keytally/pkg/window"
)

// ErrNoIntegration is returned by New when no foreground-window integration
// works on this system.
var ErrNoIntegration = errors.New("no foreground window integration available")

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}

// Fallback returns a detector that attributes all input to window.UnknownApp
// and reports no physical display size.
func Fallback() window.Detector {
	return fallbackDetector{}
}

type fallbackDetector struct{}

func (fallbackDetector) ForegroundPID() (uint32, error) {
	return 0, ErrNoIntegration
}

func (fallbackDetector) ProcessInfo(pid uint32) (*window.AppInfo, error) {
	return process.Lookup(pid)
}

func (fallbackDetector) DescribeExecutable(string) (string, error) {
	return "", ErrNoIntegration
}

func (fallbackDetector) GetDisplayInfo() (*window.DisplayInfo, error) {
	return &window.DisplayInfo{}, nil
}

func (fallbackDetector) GetPlatform() string {
	return "none"
}

func (fallbackDetector) Close() error {
	return nil
}
