//go:build windows

package win32

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/keytally/keytally/pkg/integrations/process"
	"github.com/keytally/keytally/pkg/window"

	"golang.org/x/sys/windows"
)

const (
	horzSize = 4
	vertSize = 6
	horzRes  = 8
	vertRes  = 10
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procGetDC         = user32.NewProc("GetDC")
	procReleaseDC     = user32.NewProc("ReleaseDC")
	procGetDeviceCaps = gdi32.NewProc("GetDeviceCaps")
)

// Detector implements window.Detector for Windows
type Detector struct{}

// NewDetector creates a new Windows detector
func NewDetector() *Detector {
	return &Detector{}
}

// GetPlatform returns "win32"
func (d *Detector) GetPlatform() string {
	return "win32"
}

// ForegroundPID returns the owner of the foreground window
func (d *Detector) ForegroundPID() (uint32, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return 0, errors.New("no foreground window")
	}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return 0, fmt.Errorf("failed to get window process: %w", err)
	}
	if pid == 0 {
		return 0, errors.New("foreground window has no process")
	}
	return pid, nil
}

// ProcessInfo resolves pid to its image name and path
func (d *Detector) ProcessInfo(pid uint32) (*window.AppInfo, error) {
	return process.Lookup(pid)
}

// DescribeExecutable reads FileDescription from the version resource
func (d *Detector) DescribeExecutable(exePath string) (string, error) {
	if exePath == "" {
		return "", errors.New("empty executable path")
	}

	size, err := windows.GetFileVersionInfoSize(exePath, nil)
	if err != nil || size == 0 {
		return "", fmt.Errorf("no version resource in %s: %w", exePath, err)
	}

	buf := make([]byte, size)
	if err := windows.GetFileVersionInfo(exePath, 0, size, unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("failed to read version resource: %w", err)
	}

	for _, lang := range translations(buf) {
		var ptr *uint16
		var n uint32
		sub := fmt.Sprintf(`\StringFileInfo\%s\FileDescription`, lang)
		if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), sub, unsafe.Pointer(&ptr), &n); err != nil || n == 0 || ptr == nil {
			continue
		}
		if desc := strings.TrimSpace(windows.UTF16PtrToString(ptr)); desc != "" {
			return desc, nil
		}
	}
	return "", fmt.Errorf("no FileDescription in %s", exePath)
}

// translations lists the language/codepage keys of a version block, followed
// by the common US English defaults.
func translations(block []byte) []string {
	var langs []string

	var ptr unsafe.Pointer
	var n uint32
	err := windows.VerQueryValue(unsafe.Pointer(&block[0]), `\VarFileInfo\Translation`, unsafe.Pointer(&ptr), &n)
	if err == nil && ptr != nil {
		pairs := unsafe.Slice((*[2]uint16)(ptr), n/4)
		for _, p := range pairs {
			langs = append(langs, fmt.Sprintf("%04x%04x", p[0], p[1]))
		}
	}

	return append(langs, "040904b0", "040904e4")
}

// GetDisplayInfo queries the screen device context
func (d *Detector) GetDisplayInfo() (*window.DisplayInfo, error) {
	hdc, _, err := procGetDC.Call(0)
	if hdc == 0 {
		return nil, fmt.Errorf("failed to get screen DC: %w", err)
	}
	defer procReleaseDC.Call(0, hdc)

	caps := func(index uintptr) int {
		r, _, _ := procGetDeviceCaps.Call(hdc, index)
		return int(int32(r))
	}

	return &window.DisplayInfo{
		WidthMM:  caps(horzSize),
		HeightMM: caps(vertSize),
		WidthPx:  caps(horzRes),
		HeightPx: caps(vertRes),
	}, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	return nil
}
