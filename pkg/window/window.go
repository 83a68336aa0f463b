package window

// UnknownApp is the application name used whenever the foreground process
// cannot be identified.
const UnknownApp = "Unknown"

// AppInfo describes the process that owns the foreground window
type AppInfo struct {
	Name    string // Process short name, e.g. "Code.exe" or "firefox"
	ExePath string // Absolute path of the executable, may be empty
	PID     uint32
}

// DisplayInfo is the physical size and resolution of the primary display.
// Zero millimetre values mean the device did not report a physical size.
type DisplayInfo struct {
	WidthMM  int
	HeightMM int
	WidthPx  int
	HeightPx int
}

// Detector is the interface every platform integration must satisfy
type Detector interface {
	// ForegroundPID returns the id of the process owning the foreground
	// window. It is called on the input path and must be cheap.
	ForegroundPID() (uint32, error)

	// ProcessInfo resolves a process id to its name and executable path.
	ProcessInfo(pid uint32) (*AppInfo, error)

	// DescribeExecutable returns the display name stored in the
	// executable's metadata, or an error if there is none.
	DescribeExecutable(exePath string) (string, error)

	// GetDisplayInfo queries the primary display's metrics
	GetDisplayInfo() (*DisplayInfo, error)

	// GetPlatform names the integration, e.g. "win32" or "x11"
	GetPlatform() string

	// Close cleans up any resources used by the detector
	Close() error
}
