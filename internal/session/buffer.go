package session

import (
	"encoding/json"
	"time"
)

// BufferCapacity is the fixed sliding-window size of every channel buffer.
const BufferCapacity = 100

// Sample is one timestamped value inside a channel buffer.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

// Buffer holds the most recent samples for one (device, channel) pair,
// oldest-first. Appending beyond capacity evicts the oldest sample.
type Buffer struct {
	samples []Sample
}

func NewBuffer() *Buffer {
	return &Buffer{samples: make([]Sample, 0, BufferCapacity)}
}

func (b *Buffer) Append(ts time.Time, value any) {
	if len(b.samples) >= BufferCapacity {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
	}
	b.samples = append(b.samples, Sample{Timestamp: ts, Value: value})
}

func (b *Buffer) Len() int { return len(b.samples) }

// Samples returns the buffered window oldest-first. The returned slice is the
// buffer's backing store; callers must not mutate it.
func (b *Buffer) Samples() []Sample { return b.samples }

// MarshalJSON renders the buffer as its sample array so snapshots serialize
// without an extra wrapper object.
func (b *Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.samples)
}
