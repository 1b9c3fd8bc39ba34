package frame

import (
	"sort"
	"sync"
)

// Cursor tracks per-SID state while frames are processed: sequence
// numbers, acknowledgements, the end-of-stream flag and the digest of
// the last value payload.
type Cursor struct {
	mu      sync.RWMutex
	streams map[uint64]*State
}

// State holds state for a single stream ID.
type State struct {
	SID       uint64
	Started   bool     // Whether any frame has been seen
	LastSeq   uint64   // Last sequence number seen
	LastAcked uint64   // Last sequence number acknowledged
	Digest    [32]byte // BLAKE3 of the last value payload
	HasDigest bool     // Whether Digest is valid
	Final     bool     // Whether the stream has ended
}

// NewCursor creates a new cursor.
func NewCursor() *Cursor {
	return &Cursor{streams: make(map[uint64]*State)}
}

// Get returns a copy of the state for a SID.
func (c *Cursor) Get(sid uint64) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.streams[sid]
	if !ok {
		return State{SID: sid}, false
	}
	return *st, true
}

// Delete removes state for a SID.
func (c *Cursor) Delete(sid uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, sid)
}

// SIDs returns all tracked SIDs in ascending order.
func (c *Cursor) SIDs() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sids := make([]uint64, 0, len(c.streams))
	for sid := range c.streams {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })
	return sids
}

// ProcessFrame checks a frame against its stream and updates the state.
// It returns a *SequenceError if:
//   - The stream has already ended
//   - The sequence number is not greater than the last one (duplicate or
//     reordering)
//   - The sequence number skips ahead (gap)
func (c *Cursor) ProcessFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.streams[f.SID]
	if !ok {
		st = &State{SID: f.SID}
		c.streams[f.SID] = st
	}

	if st.Final {
		return &SequenceError{SID: f.SID, Seq: f.Seq, Reason: "frame after final"}
	}
	if st.Started {
		if f.Seq <= st.LastSeq {
			return &SequenceError{SID: f.SID, Seq: f.Seq, Reason: "sequence not monotonic"}
		}
		if f.Seq != st.LastSeq+1 {
			return &SequenceError{SID: f.SID, Seq: f.Seq, Reason: "sequence gap"}
		}
	}

	st.Started = true
	st.LastSeq = f.Seq
	if f.Kind == KindValue {
		if f.Digest != nil {
			st.Digest = *f.Digest
		} else {
			st.Digest = Digest(f.Payload)
		}
		st.HasDigest = true
	}
	if f.Final {
		st.Final = true
	}
	return nil
}

// Ack marks a sequence as acknowledged.
func (c *Cursor) Ack(sid, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.streams[sid]
	if !ok {
		st = &State{SID: sid}
		c.streams[sid] = st
	}
	if seq > st.LastAcked {
		st.LastAcked = seq
	}
}

// PendingAcks returns sequences that have been seen but not acked.
func (c *Cursor) PendingAcks(sid uint64) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.streams[sid]
	if !ok || st.LastSeq <= st.LastAcked {
		return nil
	}
	pending := make([]uint64, 0, st.LastSeq-st.LastAcked)
	for seq := st.LastAcked + 1; seq <= st.LastSeq; seq++ {
		pending = append(pending, seq)
	}
	return pending
}
