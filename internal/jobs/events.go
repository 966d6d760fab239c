package jobs

import (
	"sync"
	"time"
)

// Line is one sequenced console line of a batch job.
type Line struct {
	Seq   int64     `json:"seq"`
	Time  time.Time `json:"time"`
	JobID string    `json:"job_id,omitempty"`
	Text  string    `json:"text"`
}

// EventBus keeps the most recent console lines and lets any number of
// readers catch up by sequence number. Publishing never blocks on readers:
// when the buffer is full the oldest line is dropped.
type EventBus struct {
	mu       sync.RWMutex
	nextSeq  int64
	maxLines int
	lines    []Line
	changed  chan struct{}
}

// NewEventBus creates a bounded console buffer.
func NewEventBus(maxLines int) *EventBus {
	if maxLines <= 0 {
		maxLines = 500
	}

	return &EventBus{
		maxLines: maxLines,
		lines:    make([]Line, 0, maxLines),
		changed:  make(chan struct{}),
	}
}

// Publish appends one line and assigns its sequence and timestamp.
func (b *EventBus) Publish(l Line) Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	l.Seq = b.nextSeq
	if l.Time.IsZero() {
		l.Time = time.Now().UTC()
	}

	b.lines = append(b.lines, l)
	if len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		b.lines = append([]Line(nil), b.lines[trim:]...)
	}

	b.notifyLocked()
	return l
}

// Since returns lines with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.lines) == 0 {
		return nil
	}

	out := make([]Line, 0, len(b.lines))
	for _, l := range b.lines {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out
}

// Texts returns the buffered line texts, oldest first.
func (b *EventBus) Texts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.lines))
	for i, l := range b.lines {
		out[i] = l.Text
	}
	return out
}

// LastSeq returns the sequence of the most recently published line.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Reset drops buffered lines. Sequence numbers keep increasing.
func (b *EventBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = b.lines[:0]
	b.notifyLocked()
}

// Changed returns a channel closed at the next Publish, Reset or Notify.
// Take the channel before reading so no change is missed.
func (b *EventBus) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// Notify wakes waiting readers without publishing a line.
func (b *EventBus) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyLocked()
}

func (b *EventBus) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}
