//go:build !windows

package hook

type bridgeState struct{}

func (b *Bridge) start(*Dispatcher) error {
	return ErrUnsupported
}

func (b *Bridge) stop() error {
	return nil
}
