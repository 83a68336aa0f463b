package window

import (
	"errors"
	"testing"
)

type MockDetector struct {
	pid      uint32
	pidErr   error
	apps     map[uint32]*AppInfo
	display  *DisplayInfo
	describe map[string]string
	closeErr error
}

func (m *MockDetector) ForegroundPID() (uint32, error) {
	return m.pid, m.pidErr
}

func (m *MockDetector) ProcessInfo(pid uint32) (*AppInfo, error) {
	app, ok := m.apps[pid]
	if !ok {
		return nil, errors.New("process exited")
	}
	return app, nil
}

func (m *MockDetector) DescribeExecutable(exePath string) (string, error) {
	name, ok := m.describe[exePath]
	if !ok {
		return "", errors.New("no version resource")
	}
	return name, nil
}

func (m *MockDetector) GetDisplayInfo() (*DisplayInfo, error) {
	return m.display, nil
}

func (m *MockDetector) GetPlatform() string {
	return "mock"
}

func (m *MockDetector) Close() error {
	return m.closeErr
}

func TestMockDetector(t *testing.T) {
	var _ Detector = (*MockDetector)(nil)

	mock := &MockDetector{
		pid: 42,
		apps: map[uint32]*AppInfo{
			42: {Name: "Code.exe", ExePath: `C:\Apps\Code.exe`, PID: 42},
		},
		display:  &DisplayInfo{WidthMM: 520, HeightMM: 290, WidthPx: 2560, HeightPx: 1440},
		describe: map[string]string{`C:\Apps\Code.exe`: "Visual Studio Code"},
	}

	pid, err := mock.ForegroundPID()
	if err != nil {
		t.Fatalf("ForegroundPID() error: %v", err)
	}

	app, err := mock.ProcessInfo(pid)
	if err != nil {
		t.Fatalf("ProcessInfo() error: %v", err)
	}
	if app.Name != "Code.exe" {
		t.Errorf("Name = %s, want Code.exe", app.Name)
	}

	if _, err := mock.ProcessInfo(7); err == nil {
		t.Error("ProcessInfo(7) should fail for an exited process")
	}

	desc, err := mock.DescribeExecutable(app.ExePath)
	if err != nil || desc != "Visual Studio Code" {
		t.Errorf("DescribeExecutable() = %q, %v", desc, err)
	}

	display, err := mock.GetDisplayInfo()
	if err != nil {
		t.Fatalf("GetDisplayInfo() error: %v", err)
	}
	if display.WidthPx != 2560 {
		t.Errorf("WidthPx = %d, want 2560", display.WidthPx)
	}

	if err := mock.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestUnknownApp(t *testing.T) {
	if UnknownApp == "" {
		t.Error("UnknownApp must not be empty")
	}
}
