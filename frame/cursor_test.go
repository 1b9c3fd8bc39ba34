package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_Basic(t *testing.T) {
	c := NewCursor()

	_, ok := c.Get(1)
	assert.False(t, ok, "unknown SID")

	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindValue, SID: 3, Seq: 0, Payload: []byte{11}}))
	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindPing, SID: 1, Seq: 5}))
	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindPing, SID: 2, Seq: 0}))
	assert.Equal(t, []uint64{1, 2, 3}, c.SIDs())

	st, ok := c.Get(3)
	require.True(t, ok)
	assert.True(t, st.Started)
	assert.True(t, st.HasDigest)
	assert.Equal(t, Digest([]byte{11}), st.Digest)

	c.Delete(2)
	_, ok = c.Get(2)
	assert.False(t, ok)
	assert.Equal(t, []uint64{1, 3}, c.SIDs())
}

func TestCursor_Sequence(t *testing.T) {
	tests := []struct {
		name   string
		seqs   []uint64
		reason string
	}{
		{"in order", []uint64{0, 1, 2, 3}, ""},
		{"starts anywhere", []uint64{10, 11}, ""},
		{"duplicate", []uint64{0, 1, 1}, "sequence not monotonic"},
		{"backwards", []uint64{4, 5, 2}, "sequence not monotonic"},
		{"gap", []uint64{0, 1, 3}, "sequence gap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor()
			var err error
			for _, seq := range tt.seqs {
				if err = c.ProcessFrame(&Frame{Kind: KindAck, SID: 1, Seq: seq}); err != nil {
					break
				}
			}
			if tt.reason == "" {
				require.NoError(t, err)
				st, _ := c.Get(1)
				assert.Equal(t, tt.seqs[len(tt.seqs)-1], st.LastSeq)
				return
			}
			var seqErr *SequenceError
			require.True(t, errors.As(err, &seqErr), "got %v", err)
			assert.Equal(t, tt.reason, seqErr.Reason)
			assert.Equal(t, uint64(1), seqErr.SID)
		})
	}
}

func TestCursor_Final(t *testing.T) {
	c := NewCursor()
	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindValue, SID: 1, Seq: 0}))
	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindValue, SID: 1, Seq: 1, Final: true}))

	st, _ := c.Get(1)
	assert.True(t, st.Final)

	err := c.ProcessFrame(&Frame{Kind: KindValue, SID: 1, Seq: 2})
	var seqErr *SequenceError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, "frame after final", seqErr.Reason)
}

func TestCursor_DigestFromHeader(t *testing.T) {
	c := NewCursor()
	d := [32]byte{1, 2, 3}
	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindValue, SID: 1, Seq: 0, Payload: []byte("x"), Digest: &d}))

	st, _ := c.Get(1)
	assert.Equal(t, d, st.Digest)

	// Non-value frames leave the digest alone.
	require.NoError(t, c.ProcessFrame(&Frame{Kind: KindErr, SID: 1, Seq: 1, Payload: []byte("y")}))
	st, _ = c.Get(1)
	assert.Equal(t, d, st.Digest)
}

func TestCursor_PendingAcks(t *testing.T) {
	c := NewCursor()
	assert.Nil(t, c.PendingAcks(1))

	for seq := uint64(0); seq <= 4; seq++ {
		require.NoError(t, c.ProcessFrame(&Frame{Kind: KindValue, SID: 1, Seq: seq}))
	}
	assert.Equal(t, []uint64{1, 2, 3, 4}, c.PendingAcks(1))

	c.Ack(1, 2)
	assert.Equal(t, []uint64{3, 4}, c.PendingAcks(1))

	c.Ack(1, 1)
	assert.Equal(t, []uint64{3, 4}, c.PendingAcks(1), "acks never move backwards")

	c.Ack(1, 4)
	assert.Nil(t, c.PendingAcks(1))
}
