//go:build windows

package hook

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14
	wmQuit       = 0x0012
	pmNoRemove   = 0x0000
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetModuleHandleW    = kernel32.NewProc("GetModuleHandleW")
)

type msg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       Point
	lPrivate uint32
}

type bridgeState struct {
	// Native trampolines. syscall.NewCallback never frees them, so they are
	// created once per Bridge and stay reachable for its whole lifetime.
	keyboardProc uintptr
	mouseProc    uintptr

	dispatcher atomic.Pointer[Dispatcher]
	threadID   uint32
	done       chan struct{}
}

func (b *Bridge) start(d *Dispatcher) error {
	s := &b.state
	if s.keyboardProc == 0 {
		s.keyboardProc = syscall.NewCallback(b.keyboardCallback)
		s.mouseProc = syscall.NewCallback(b.mouseCallback)
	}
	s.dispatcher.Store(d)

	ready := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		var m msg
		// Force creation of this thread's message queue so that the quit
		// message posted by stop can never be lost.
		procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)

		module, _, _ := procGetModuleHandleW.Call(0)
		kb, _, kbErr := procSetWindowsHookExW.Call(whKeyboardLL, s.keyboardProc, module, 0)
		ms, _, msErr := procSetWindowsHookExW.Call(whMouseLL, s.mouseProc, module, 0)
		if kb == 0 || ms == 0 {
			if kb != 0 {
				procUnhookWindowsHookEx.Call(kb)
			}
			if ms != 0 {
				procUnhookWindowsHookEx.Call(ms)
			}
			ready <- fmt.Errorf("%w: keyboard: %v, mouse: %v", ErrInstallFailed, kbErr, msErr)
			return
		}

		s.threadID = windows.GetCurrentThreadId()
		ready <- nil

		for {
			r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			// 0 is WM_QUIT, -1 is an error.
			if int32(r) <= 0 {
				break
			}
		}

		procUnhookWindowsHookEx.Call(kb)
		procUnhookWindowsHookEx.Call(ms)
	}()

	if err := <-ready; err != nil {
		<-done
		s.dispatcher.Store(nil)
		return err
	}
	s.done = done
	return nil
}

func (b *Bridge) stop() error {
	s := &b.state
	r, _, err := procPostThreadMessageW.Call(uintptr(s.threadID), wmQuit, 0, 0)
	if r == 0 {
		return fmt.Errorf("failed to signal hook thread: %w", err)
	}
	<-s.done
	s.dispatcher.Store(nil)
	return nil
}

// keyboardCallback is the LowLevelKeyboardProc. The event is passed down the
// hook chain before anything else happens, so input never stalls no matter
// what classification does.
func (b *Bridge) keyboardCallback(nCode, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	if d := b.state.dispatcher.Load(); d != nil {
		d.Keyboard(int32(nCode), wParam, (*KeyboardInfo)(unsafe.Pointer(lParam)))
	}
	return ret
}

// mouseCallback is the LowLevelMouseProc.
func (b *Bridge) mouseCallback(nCode, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	if d := b.state.dispatcher.Load(); d != nil {
		d.Mouse(int32(nCode), wParam, (*MouseInfo)(unsafe.Pointer(lParam)))
	}
	return ret
}
