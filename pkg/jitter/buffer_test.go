package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pushFrames(b *Buffer, stereoFrames int) {
	frame := make([]float32, stereoFrames*2)
	for i := range frame {
		frame[i] = 1
	}
	b.Push(frame)
}

func TestBuffer_StartsInBuffering(t *testing.T) {
	b := New(100, 48000, 48000, nil)
	assert.True(t, b.Buffering())

	out := make([]float32, 20)
	b.Fill(out)
	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
	assert.True(t, b.Buffering(), "should remain buffering until target reached")
}

func TestBuffer_ReachesTargetThenPlays(t *testing.T) {
	b := New(20, 48000, 48000, nil)
	pushFrames(b, 10) // 20 interleaved samples == target

	out := make([]float32, 10)
	b.Fill(out)
	assert.False(t, b.Buffering())
	for _, s := range out {
		assert.NotEqual(t, float32(0), s)
	}
}

func TestBuffer_UnderrunResetsQueueToZeroAndRebuffers(t *testing.T) {
	b := New(4, 48000, 48000, nil)
	pushFrames(b, 2) // exactly at target: 4 interleaved samples

	out := make([]float32, 4)
	b.Fill(out) // drains the queue exactly, should flip to buffering after drain
	assert.True(t, b.Buffering())
	assert.Equal(t, 0, b.QueueLen())

	// Subsequent fills stay silent and buffering until refilled.
	out2 := make([]float32, 4)
	b.Fill(out2)
	for _, s := range out2 {
		assert.Equal(t, float32(0), s)
	}
}

func TestBuffer_DeafenedStillDrainsQueue(t *testing.T) {
	deafened := true
	b := New(4, 48000, 48000, func() bool { return deafened })
	pushFrames(b, 4) // well over target

	out := make([]float32, 4)
	b.Fill(out)
	for _, s := range out {
		assert.Equal(t, float32(0), s, "deafened output must be silent")
	}
	// Queue still shrank even though output was muted.
	assert.Less(t, b.QueueLen(), 8)
}

func TestBuffer_ResampleRatioBelowOneStretchesQueue(t *testing.T) {
	// Device rate above source rate means ratio < 1, so fracPos advances
	// slower than one queue-frame per output-frame: the queue should
	// outlast a 1:1 buffer fed the same data and drained the same amount.
	oneToOne := New(4, 48000, 48000, nil)
	pushFrames(oneToOne, 2)
	oneToOne.Fill(make([]float32, 4))

	stretched := New(4, 48000, 96000, nil)
	pushFrames(stretched, 2)
	stretched.Fill(make([]float32, 4))

	assert.GreaterOrEqual(t, stretched.QueueLen(), oneToOne.QueueLen())
}
