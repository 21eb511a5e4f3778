// Package jitter implements the decoded-audio FIFO and linear-interpolation
// resampler that feeds the playback output callback.
package jitter

import "sync"

// TargetSamples is the default fill target before playback starts or
// resumes after an underrun: 3840 interleaved stereo samples (1920 per
// channel), ~40ms at 48kHz stereo.
const TargetSamples = 3840

// Buffer is a FIFO of decoded interleaved stereo f32 samples at the fixed
// 48kHz source rate, drained by the output callback at the device's rate
// via linear interpolation. Safe for concurrent use: Push is called from
// the decoder goroutine, Fill from the output device callback.
type Buffer struct {
	mu        sync.Mutex
	queue     []float32
	target    int
	buffering bool

	sourceRate float64
	deviceRate float64
	fracPos    float64

	deafened func() bool
}

// New creates a Buffer targeting targetSamples before (re)starting
// playback, resampling from sourceRate to deviceRate. deafened, if non-nil,
// is polled on every Fill to decide whether to zero the output while still
// draining the queue.
func New(targetSamples int, sourceRate, deviceRate int, deafened func() bool) *Buffer {
	if targetSamples <= 0 {
		targetSamples = TargetSamples
	}
	return &Buffer{
		target:     targetSamples,
		buffering:  true,
		sourceRate: float64(sourceRate),
		deviceRate: float64(deviceRate),
		deafened:   deafened,
	}
}

// Push appends one decoded frame (interleaved stereo f32) to the queue.
func (b *Buffer) Push(frame []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, frame...)
}

// Fill writes len(out) interleaved device-rate stereo samples. It never
// blocks: if the queue underruns, it outputs silence and re-enters
// buffering until the queue reaches the target again.
func (b *Buffer) Fill(out []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffering {
		if len(b.queue) >= b.target {
			b.buffering = false
		} else {
			zero(out)
			return
		}
	} else if len(b.queue) == 0 {
		b.buffering = true
		b.fracPos = 0
		zero(out)
		return
	}

	deaf := b.deafened != nil && b.deafened()
	ratio := b.sourceRate / b.deviceRate

	const channels = 2
	frames := len(out) / channels
	for i := 0; i < frames; i++ {
		if len(b.queue) == 0 {
			// Ran out mid-block: flip to buffering for the next callback
			// and zero the remainder of this one.
			b.buffering = true
			b.fracPos = 0
			zero(out[i*channels:])
			return
		}

		for c := 0; c < channels; c++ {
			a := b.queue[c]
			var bb float32
			if len(b.queue) > channels+c {
				bb = b.queue[channels+c]
			} else {
				bb = a
			}
			v := a + (bb-a)*float32(b.fracPos)
			if deaf {
				v = 0
			}
			out[i*channels+c] = v
		}

		b.fracPos += ratio
		for b.fracPos >= 1.0 {
			if len(b.queue) >= channels {
				b.queue = b.queue[channels:]
			} else {
				b.queue = b.queue[:0]
			}
			b.fracPos -= 1.0
		}
	}

	// Drained exactly at the end of the block: rebuffer from here.
	if len(b.queue) == 0 {
		b.buffering = true
		b.fracPos = 0
	}
}

// SetDeviceRate updates the resampling target rate, e.g. once the actual
// output device rate is known after stream negotiation. Safe to call
// concurrently with Fill.
func (b *Buffer) SetDeviceRate(deviceRate int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceRate = float64(deviceRate)
}

// QueueLen reports the current queue length in interleaved samples, mostly
// for tests.
func (b *Buffer) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Buffering reports whether the buffer is currently withholding playback.
func (b *Buffer) Buffering() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffering
}

func zero(out []float32) {
	for i := range out {
		out[i] = 0
	}
}
