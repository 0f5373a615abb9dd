package dispatch

import (
	"image"
	"sync/atomic"

	"github.com/okian/kiosk/internal/domain/model"
)

// Snapshot pairs a frame with the detection found in it.
type Snapshot struct {
	Frame     image.Image
	Detection *model.DetectionFrame
}

// Latch is a last-write-wins single slot. The render loop is its only writer.
type Latch struct {
	p atomic.Pointer[Snapshot]
}

// Store replaces the latched snapshot.
func (l *Latch) Store(frame image.Image, det *model.DetectionFrame) {
	l.p.Store(&Snapshot{Frame: frame, Detection: det})
}

// Load returns the latest snapshot, or nil if none has been stored.
func (l *Latch) Load() *Snapshot {
	return l.p.Load()
}

// Clear empties the slot.
func (l *Latch) Clear() {
	l.p.Store(nil)
}
