// Package vad implements the RMS-energy voice-activity detector with a
// hangover and discontinuous-transmission (DTX) gate for gating outbound
// audio packets.
package vad

import "math"

// DefaultThreshold and DefaultHangoverFrames are the defaults: an RMS
// energy threshold of 0.005 and a 10-frame (200ms at 20ms/frame) hangover
// before a talking edge flips back to silence.
const (
	DefaultThreshold      = 0.005
	DefaultHangoverFrames = 10
)

// Gate tracks hangover state across frames and reports edge-triggered
// talking transitions. It is not safe for concurrent use; the caller
// (one audio capture thread per cycle) owns it exclusively.
type Gate struct {
	threshold      float32
	hangoverFrames int

	hangover   int
	wasTalking bool
}

// NewGate builds a Gate with the given threshold and hangover length. Pass
// DefaultThreshold/DefaultHangoverFrames for the usual settings.
func NewGate(threshold float32, hangoverFrames int) *Gate {
	return &Gate{threshold: threshold, hangoverFrames: hangoverFrames}
}

// RMS computes the root-mean-square energy of an interleaved f32 frame.
func RMS(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range frame {
		sumSq += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sumSq / float64(len(frame))))
}

// Process evaluates one 20ms frame and returns whether the packet derived
// from it should be sent (isTalking) and whether this frame is an edge
// transition (changed) — i.e. whether a voice-activity event must be
// emitted. The transition is edge-triggered: it fires exactly once per
// state change, never once per frame.
func (g *Gate) Process(frame []float32) (isTalking, changed bool) {
	rms := RMS(frame)
	if rms > g.threshold {
		g.hangover = g.hangoverFrames
	} else if g.hangover > 0 {
		g.hangover--
	}

	isTalking = g.hangover > 0
	changed = isTalking != g.wasTalking
	g.wasTalking = isTalking
	return isTalking, changed
}

// ForceSilence immediately flips the gate to not-talking (used when mute
// engages mid-utterance) and reports whether that is itself a transition
// that must be emitted.
func (g *Gate) ForceSilence() (changed bool) {
	g.hangover = 0
	changed = g.wasTalking
	g.wasTalking = false
	return changed
}

// IsTalking reports the last computed state without advancing it.
func (g *Gate) IsTalking() bool {
	return g.wasTalking
}
