// Package label holds the transient identity label drawn over the current face.
package label

import (
	"sync"
	"time"
)

// Kind selects the overlay style for a label.
type Kind int

// Label kinds.
const (
	Scanning   Kind = iota // no identity yet
	Recognized             // remote service matched a subject
	Unknown                // not recognized, or the call failed
)

// ScanningText is drawn while no identity is attached to the current face.
const ScanningText = "Scanning..."

// ErrorText is shown when a recognition call failed.
const ErrorText = "Error"

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Recognized:
		return "recognized"
	case Unknown:
		return "unknown"
	default:
		return "scanning"
	}
}

// State is the label currently displayed.
type State struct {
	Text string `json:"text"`
	Kind Kind   `json:"-"`
}

// Board holds the current label and reverts it to scanning after a display duration.
// A later Set cancels the pending revert of an earlier one.
type Board struct {
	mu    sync.Mutex
	state State
	gen   uint64
	timer *time.Timer
}

// NewBoard returns a board showing the scanning placeholder.
func NewBoard() *Board {
	return &Board{state: State{Text: ScanningText, Kind: Scanning}}
}

// Set shows text with the given style and schedules a revert after ttl.
// A non-positive ttl keeps the label until the next Set or Clear.
func (b *Board) Set(text string, kind Kind, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gen++
	b.state = State{Text: text, Kind: kind}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if ttl <= 0 {
		return
	}
	gen := b.gen
	b.timer = time.AfterFunc(ttl, func() { b.revert(gen) })
}

func (b *Board) revert(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}
	b.state = State{Text: ScanningText, Kind: Scanning}
	b.timer = nil
}

// Clear reverts to scanning immediately.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.state = State{Text: ScanningText, Kind: Scanning}
}

// Current returns the displayed label.
func (b *Board) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
