// Package process resolves process ids to names and executables.
package process

import (
	"fmt"
	"path/filepath"

	"github.com/keytally/keytally/pkg/window"

	"github.com/shirou/gopsutil/v3/process"
)

// Lookup returns the short name and executable path of pid. A process that
// exited or cannot be opened yields an error; an unreadable executable path
// is tolerated and left empty.
func Lookup(pid uint32) (*window.AppInfo, error) {
	if pid == 0 {
		return nil, fmt.Errorf("pid 0 is not a user process")
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	exe, exeErr := p.Exe()
	if exeErr != nil {
		exe = ""
	}

	name, err := p.Name()
	if err != nil || name == "" {
		if exe == "" {
			return nil, fmt.Errorf("failed to read name of process %d: %w", pid, err)
		}
		name = filepath.Base(exe)
	}

	return &window.AppInfo{Name: name, ExePath: exe, PID: pid}, nil
}

// Exists reports whether a process with the given id is running.
func Exists(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Terminate asks the process to exit (SIGTERM, or TerminateProcess on Windows).
func Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", pid, err)
	}
	return nil
}
