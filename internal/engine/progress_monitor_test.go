package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/fastdl/internal/progress"
)

func TestProgressMonitor_Broadcast(t *testing.T) {
	pm := NewProgressMonitor()

	a := make(chan Update, 1)
	b := make(chan Update, 1)

	pm.RegisterListener("a", a)
	pm.RegisterListener("b", b)

	u := Update{Path: "/tmp/x", Snapshot: progress.Snapshot{BytesCompleted: 10}}
	pm.broadcast(u)

	assert.Equal(t, u, <-a)
	assert.Equal(t, u, <-b)

	pm.UnregisterListener("b")
	pm.broadcast(u)

	assert.Len(t, a, 1)
	assert.Empty(t, b)
}

func TestProgressMonitor_SlowListenerDoesNotBlock(t *testing.T) {
	pm := NewProgressMonitor()

	slow := make(chan Update)
	pm.RegisterListener("slow", slow)

	done := make(chan struct{})

	go func() {
		pm.broadcast(Update{})
		close(done)
	}()

	<-done
}

func TestProgressMonitor_Stop(t *testing.T) {
	pm := NewProgressMonitor()

	ch := make(chan Update, 1)
	pm.RegisterListener("x", ch)
	pm.Stop()

	_, ok := <-ch
	require.False(t, ok)

	pm.broadcast(Update{})
}
