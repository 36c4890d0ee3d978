package storage

import (
	"sync/atomic"
	"time"
)

// Sequencer reports the current ledger sequence number.
type Sequencer interface {
	Sequence() uint32
}

// DefaultLedgerClose is the nominal time between ledgers.
const DefaultLedgerClose = 5 * time.Second

// ClockSequence derives the sequence from wall-clock time elapsed since
// Genesis.
type ClockSequence struct {
	Genesis time.Time
	Close   time.Duration
	Now     func() time.Time
}

func (c ClockSequence) Sequence() uint32 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	closeEvery := c.Close
	if closeEvery <= 0 {
		closeEvery = DefaultLedgerClose
	}
	elapsed := now().Sub(c.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint32(elapsed / closeEvery)
}

// ManualSequence is advanced explicitly.
type ManualSequence struct {
	n atomic.Uint32
}

func NewManualSequence(start uint32) *ManualSequence {
	s := &ManualSequence{}
	s.n.Store(start)
	return s
}

func (s *ManualSequence) Sequence() uint32 { return s.n.Load() }

// Advance moves the sequence forward by n ledgers.
func (s *ManualSequence) Advance(n uint32) { s.n.Add(n) }
