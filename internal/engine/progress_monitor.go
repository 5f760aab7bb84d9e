package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fastdl/internal/progress"
	"github.com/NamanBalaji/fastdl/internal/status"
)

// Update is a progress snapshot of one transfer. The final update of a run carries Completed
// or Paused; every earlier one carries Active.
type Update struct {
	ID       uuid.UUID
	Path     string
	Status   status.Status
	Snapshot progress.Snapshot
	Final    bool
}

// ProgressMonitor fans transfer updates out to registered listeners. Slow listeners miss
// updates instead of stalling the transfer.
type ProgressMonitor struct {
	listeners  map[string]chan<- Update
	listenerMu sync.RWMutex
}

// NewProgressMonitor creates a new progress monitor
func NewProgressMonitor() *ProgressMonitor {
	return &ProgressMonitor{
		listeners: make(map[string]chan<- Update),
	}
}

// RegisterListener adds a new progress listener
func (pm *ProgressMonitor) RegisterListener(id string, listener chan<- Update) {
	pm.listenerMu.Lock()
	defer pm.listenerMu.Unlock()

	pm.listeners[id] = listener
}

// UnregisterListener removes a progress listener
func (pm *ProgressMonitor) UnregisterListener(id string) {
	pm.listenerMu.Lock()
	defer pm.listenerMu.Unlock()

	delete(pm.listeners, id)
}

// Stop drops and closes every listener.
func (pm *ProgressMonitor) Stop() {
	pm.listenerMu.Lock()
	defer pm.listenerMu.Unlock()

	for _, ch := range pm.listeners {
		close(ch)
	}

	pm.listeners = make(map[string]chan<- Update)
}

// broadcast forwards an update to all listeners
func (pm *ProgressMonitor) broadcast(u Update) {
	pm.listenerMu.RLock()
	defer pm.listenerMu.RUnlock()

	for _, listener := range pm.listeners {
		select {
		case listener <- u:
		default:
		}
	}
}
