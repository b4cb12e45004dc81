package aprs

import "sync/atomic"

const SequenceMax = 999

// Sequence is telemetry T# counter 0-999, wraps to 0 after 999.
// Zero value starts at 0. Safe for concurrent use.
type Sequence struct{ v uint32 }

func NewSequence(start uint32) *Sequence {
	return &Sequence{v: start % (SequenceMax + 1)}
}

// Next returns current value and advances counter.
func (s *Sequence) Next() uint32 {
	for {
		cur := atomic.LoadUint32(&s.v)
		next := cur + 1
		if next > SequenceMax {
			next = 0
		}
		if atomic.CompareAndSwapUint32(&s.v, cur, next) {
			return cur
		}
	}
}

// Peek returns value to be used by next telemetry frame.
func (s *Sequence) Peek() uint32 { return atomic.LoadUint32(&s.v) }
