package hook

import "errors"

var (
	// ErrUnsupported is returned by Bridge.Start on systems without
	// low-level input hooks.
	ErrUnsupported = errors.New("global input hooks are not supported on this platform")

	// ErrInstallFailed means the OS refused to install one of the hooks.
	ErrInstallFailed = errors.New("failed to install input hooks")

	// ErrAlreadyRunning is returned by a second Bridge.Start.
	ErrAlreadyRunning = errors.New("input hooks already installed")
)
