//go:build !windows

package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeUnsupported(t *testing.T) {
	b := NewBridge(nil)

	err := b.Start(SinkFunc(func(Event) {}))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, b.Running())
	assert.NoError(t, b.Stop())
}
