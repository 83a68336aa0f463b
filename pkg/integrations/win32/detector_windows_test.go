//go:build windows

package win32

import (
	"os"
	"testing"

	"github.com/keytally/keytally/pkg/window"
)

func TestDetectorInterface(t *testing.T) {
	var _ window.Detector = NewDetector()
}

func TestGetPlatform(t *testing.T) {
	if got := NewDetector().GetPlatform(); got != "win32" {
		t.Errorf("GetPlatform() = %s, want win32", got)
	}
}

func TestGetDisplayInfo(t *testing.T) {
	info, err := NewDetector().GetDisplayInfo()
	if err != nil {
		t.Skipf("no display: %v", err)
	}
	t.Logf("display: %+v", info)
}

func TestDescribeExecutable(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable() error: %v", err)
	}

	// Test binaries carry no version resource.
	if _, err := NewDetector().DescribeExecutable(exe); err == nil {
		t.Log("test binary unexpectedly has a FileDescription")
	}

	desc, err := NewDetector().DescribeExecutable(os.Getenv("WINDIR") + `\explorer.exe`)
	if err != nil {
		t.Skipf("explorer.exe has no description: %v", err)
	}
	t.Logf("explorer.exe: %s", desc)
}
