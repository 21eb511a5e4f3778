package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentFrame(n int) []float32 {
	return make([]float32, n)
}

func loudFrame(n int, amplitude float32) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = amplitude
		} else {
			frame[i] = -amplitude
		}
	}
	return frame
}

func TestRMS(t *testing.T) {
	require.Equal(t, float32(0), RMS(nil))
	require.Equal(t, float32(0), RMS(silentFrame(1920)))

	frame := loudFrame(1920, 0.5)
	rms := RMS(frame)
	assert.InDelta(t, 0.5, rms, 1e-6)
}

func TestGate_ThresholdBoundary(t *testing.T) {
	g := NewGate(DefaultThreshold, DefaultHangoverFrames)

	// Just below threshold: never talking.
	below := loudFrame(1920, 0.0049)
	talking, changed := g.Process(below)
	assert.False(t, talking)
	assert.False(t, changed)

	// Just above threshold: talking, and this is the rising edge.
	above := loudFrame(1920, 0.0051)
	talking, changed = g.Process(above)
	assert.True(t, talking)
	assert.True(t, changed)

	// A second loud frame holds talking but is not itself a transition.
	talking, changed = g.Process(above)
	assert.True(t, talking)
	assert.False(t, changed)
}

func TestGate_HangoverDelaysFallingEdge(t *testing.T) {
	g := NewGate(DefaultThreshold, 3)

	talking, changed := g.Process(loudFrame(1920, 0.1))
	require.True(t, talking)
	require.True(t, changed)

	// The first two silent frames count the hangover down (3 -> 2 -> 1)
	// without flipping state...
	for i := 0; i < 2; i++ {
		talking, changed = g.Process(silentFrame(1920))
		assert.True(t, talking, "frame %d should still be within hangover", i)
		assert.False(t, changed)
	}

	// ...and the third silent frame reaches zero: the falling edge.
	talking, changed = g.Process(silentFrame(1920))
	assert.False(t, talking)
	assert.True(t, changed)
}

func TestGate_ForceSilence(t *testing.T) {
	g := NewGate(DefaultThreshold, DefaultHangoverFrames)
	g.Process(loudFrame(1920, 0.1))
	require.True(t, g.IsTalking())

	changed := g.ForceSilence()
	assert.True(t, changed)
	assert.False(t, g.IsTalking())

	// Calling it again with no intervening talk is not a new transition.
	changed = g.ForceSilence()
	assert.False(t, changed)
}
