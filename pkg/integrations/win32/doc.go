// Package win32 implements window.Detector with the Win32 API: the foreground
// window's owning process, executable version resources and the primary
// display's device capabilities.
package win32
