package x11

import (
	"testing"

	"github.com/keytally/keytally/pkg/window"
)

func TestDecodeCard32(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   uint32
		wantOK bool
	}{
		{"empty", nil, 0, false},
		{"short", []byte{1, 2}, 0, false},
		{"window id", []byte{0x01, 0x00, 0x60, 0x03}, 0x03600001, true},
		{"extra bytes", []byte{0x2a, 0, 0, 0, 0xff}, 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeCard32(tt.data)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("decodeCard32(%v) = %d, %v; want %d, %v", tt.data, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNewDetector(t *testing.T) {
	detector, err := NewDetector()
	if err != nil {
		t.Skipf("X11 not available: %v", err)
	}
	defer detector.Close()

	var _ window.Detector = detector

	if got := detector.GetPlatform(); got != "x11" {
		t.Errorf("GetPlatform() = %s, want x11", got)
	}

	info, err := detector.GetDisplayInfo()
	if err != nil {
		t.Fatalf("GetDisplayInfo() error: %v", err)
	}
	if info.WidthPx <= 0 {
		t.Errorf("WidthPx = %d, want > 0", info.WidthPx)
	}

	pid, err := detector.ForegroundPID()
	t.Logf("foreground pid: %d (err: %v)", pid, err)
}
