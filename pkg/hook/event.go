// Package hook turns OS-level global keyboard and mouse callbacks into input
// events. Classification is platform neutral; only the Bridge that installs
// the hooks and pumps the hook thread's message queue is Windows specific.
package hook

// Event is one classified input event. It is produced inside the hook
// callback and handed to a Sink immediately; events are never stored.
type Event interface {
	isEvent()
}

// Button identifies the mouse button of a click.
type Button uint8

const (
	ButtonLeft Button = iota + 1
	ButtonRight
	ButtonMiddle
	ButtonX1
	ButtonX2
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	case ButtonX1:
		return "x1"
	case ButtonX2:
		return "x2"
	default:
		return "unknown"
	}
}

// KeyPress is a key-down transition. Injected presses never reach a Sink.
type KeyPress struct {
	ScanCode   uint32
	VirtualKey uint32
	Injected   bool
}

// MouseMove carries the new cursor position and the displacement from the
// previous one, in pixels.
type MouseMove struct {
	X, Y   int32
	DX, DY int32
}

// MouseClick is a button-down at screen coordinate (X, Y).
type MouseClick struct {
	X, Y   int32
	Button Button
}

// MouseScroll is a wheel rotation. Delta is signed; one notch is WheelDelta.
type MouseScroll struct {
	Delta      int32
	Horizontal bool
}

func (KeyPress) isEvent()    {}
func (MouseMove) isEvent()   {}
func (MouseClick) isEvent()  {}
func (MouseScroll) isEvent() {}

// Sink receives classified events on the hook thread. Implementations must
// return quickly and must not block on I/O.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// HandleEvent calls f(ev).
func (f SinkFunc) HandleEvent(ev Event) { f(ev) }
