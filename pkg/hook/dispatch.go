package hook

import (
	"sync"
	"sync/atomic"
)

// Native message identifiers and flags delivered to low-level hooks.
const (
	HCAction = 0

	WMKeyDown     = 0x0100
	WMKeyUp       = 0x0101
	WMSysKeyDown  = 0x0104
	WMSysKeyUp    = 0x0105
	WMMouseMove   = 0x0200
	WMLButtonDown = 0x0201
	WMLButtonUp   = 0x0202
	WMRButtonDown = 0x0204
	WMMButtonDown = 0x0207
	WMMouseWheel  = 0x020A
	WMXButtonDown = 0x020B
	WMMouseHWheel = 0x020E

	LLKHFInjected = 0x10

	// WheelDelta is the wheel rotation of one notch.
	WheelDelta = 120
)

// KeyboardInfo has the memory layout of KBDLLHOOKSTRUCT. ExtraInfo is
// pointer sized, so the struct is 20 bytes on 32-bit and 24 bytes on 64-bit
// systems, matching the native definition on both.
type KeyboardInfo struct {
	VkCode    uint32
	ScanCode  uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// Point is a screen coordinate in pixels.
type Point struct {
	X, Y int32
}

// MouseInfo has the memory layout of MSLLHOOKSTRUCT.
type MouseInfo struct {
	Pt        Point
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// Counters are the dispatcher's health counters. They are updated with
// atomics only and may be read from any goroutine.
type Counters struct {
	delivered atomic.Uint64
	injected  atomic.Uint64
	panics    atomic.Uint64
}

// Delivered is the number of events handed to the sink.
func (c *Counters) Delivered() uint64 { return c.delivered.Load() }

// Injected is the number of synthetic key presses that were dropped.
func (c *Counters) Injected() uint64 { return c.injected.Load() }

// Panics is the number of panics recovered at the callback boundary.
func (c *Counters) Panics() uint64 { return c.panics.Load() }

// Dispatcher classifies raw hook callbacks and forwards the resulting events
// to a Sink. No panic raised by classification or by the sink escapes
// Keyboard or Mouse.
type Dispatcher struct {
	sink     Sink
	counters *Counters

	mu      sync.Mutex
	last    Point
	hasLast bool
}

// NewDispatcher returns a dispatcher feeding sink. counters may be nil.
func NewDispatcher(sink Sink, counters *Counters) *Dispatcher {
	if counters == nil {
		counters = &Counters{}
	}
	return &Dispatcher{sink: sink, counters: counters}
}

// Counters returns the dispatcher's health counters.
func (d *Dispatcher) Counters() *Counters {
	return d.counters
}

// Keyboard handles one low-level keyboard callback. Only key-down and
// system-key-down transitions are forwarded.
func (d *Dispatcher) Keyboard(nCode int32, msg uintptr, info *KeyboardInfo) {
	defer d.absorbPanic()

	if nCode != HCAction || info == nil {
		return
	}
	if msg != WMKeyDown && msg != WMSysKeyDown {
		return
	}
	if info.Flags&LLKHFInjected != 0 {
		d.counters.injected.Add(1)
		return
	}

	d.deliver(KeyPress{ScanCode: info.ScanCode, VirtualKey: info.VkCode})
}

// Mouse handles one low-level mouse callback.
func (d *Dispatcher) Mouse(nCode int32, msg uintptr, info *MouseInfo) {
	defer d.absorbPanic()

	if nCode != HCAction || info == nil {
		return
	}

	switch msg {
	case WMMouseMove:
		if ev, ok := d.move(info.Pt); ok {
			d.deliver(ev)
		}
	case WMLButtonDown:
		d.deliver(MouseClick{X: info.Pt.X, Y: info.Pt.Y, Button: ButtonLeft})
	case WMRButtonDown:
		d.deliver(MouseClick{X: info.Pt.X, Y: info.Pt.Y, Button: ButtonRight})
	case WMMButtonDown:
		d.deliver(MouseClick{X: info.Pt.X, Y: info.Pt.Y, Button: ButtonMiddle})
	case WMXButtonDown:
		button := ButtonX1
		if info.MouseData>>16 == 2 {
			button = ButtonX2
		}
		d.deliver(MouseClick{X: info.Pt.X, Y: info.Pt.Y, Button: button})
	case WMMouseWheel, WMMouseHWheel:
		delta := int32(int16(info.MouseData >> 16))
		if delta != 0 {
			d.deliver(MouseScroll{Delta: delta, Horizontal: msg == WMMouseHWheel})
		}
	}
}

// move records pt and returns the displacement from the previous position.
// The first position ever seen only seeds the tracker.
func (d *Dispatcher) move(pt Point) (MouseMove, bool) {
	d.mu.Lock()
	prev, had := d.last, d.hasLast
	d.last, d.hasLast = pt, true
	d.mu.Unlock()

	if !had {
		return MouseMove{}, false
	}
	dx, dy := pt.X-prev.X, pt.Y-prev.Y
	if dx == 0 && dy == 0 {
		return MouseMove{}, false
	}
	return MouseMove{X: pt.X, Y: pt.Y, DX: dx, DY: dy}, true
}

func (d *Dispatcher) deliver(ev Event) {
	d.sink.HandleEvent(ev)
	d.counters.delivered.Add(1)
}

func (d *Dispatcher) absorbPanic() {
	if r := recover(); r != nil {
		d.counters.panics.Add(1)
	}
}
