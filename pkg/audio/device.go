package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// FrameHandler receives one 20ms stereo f32 frame (1920 interleaved
// samples) from the capture device, already up/down-mixed to stereo and
// resampled to 48kHz if the device runs at a different rate.
type FrameHandler func(frame []float32)

// InputStream owns one capture device for the lifetime of a signaling
// cycle. It is torn down and rebuilt every cycle so its callback always
// targets the current cycle's outbound pipeline (see controller ResetPending).
type InputStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu           sync.Mutex
	stopped      bool
	cycleRunning func() bool
	muted        func() bool
	onMute       func()
	onFrame      FrameHandler

	accum      []float32
	deviceRate int
	channels   int
}

// OpenInputStream opens the default capture device, requesting 48kHz
// stereo f32. It reads back the sample rate the device reports after init
// and, when that differs from 48kHz, resamples in-callback to the 48kHz
// stereo contract. No other device config is tried: if init fails, the
// error is returned.
//
// running reports whether the owning cycle (and session) is still live;
// the callback consults it on every invocation in addition to the internal
// stopped flag Stop() sets, so a cycle reset is observed immediately rather
// than waiting for Stop() to actually reach the device. muted reports the
// mute flag; onMuteTransition is called once when a previously-talking
// stream is muted, so the caller can emit the voice-activity=false edge
// immediately (VAD itself only sees frames that reach onFrame).
func OpenInputStream(running func() bool, muted func() bool, onMuteTransition func(), onFrame FrameHandler) (*InputStream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.PeriodSizeInFrames = FrameSamplesPerChannel

	in := &InputStream{
		ctx:          ctx,
		cycleRunning: running,
		muted:        muted,
		onMute:       onMuteTransition,
		onFrame:      onFrame,
		deviceRate:   SampleRate,
		channels:     Channels,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputBytes []byte, frameCount uint32) {
			in.handleCallback(inputBytes, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if negotiated := int(device.SampleRate()); negotiated != 0 {
		in.deviceRate = negotiated
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	in.device = device
	return in, nil
}

func (in *InputStream) handleCallback(raw []byte, frameCount int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped || !in.cycleRunning() {
		return
	}

	if in.muted() {
		if in.onMute != nil {
			in.onMute()
		}
		in.accum = in.accum[:0]
		return
	}

	samples := bytesToF32(raw, frameCount*in.channels)
	stereo := toStereo(samples, in.channels)
	if in.deviceRate != SampleRate {
		stereo = ResampleStereoF32(stereo, in.deviceRate, SampleRate)
	}
	in.accum = append(in.accum, stereo...)

	for len(in.accum) >= FrameSamples {
		frame := make([]float32, FrameSamples)
		copy(frame, in.accum[:FrameSamples])

		remaining := len(in.accum) - FrameSamples
		copy(in.accum, in.accum[FrameSamples:])
		in.accum = in.accum[:remaining]

		in.onFrame(frame)
	}
}

// Stop halts and releases the capture device. Safe to call once per stream.
func (in *InputStream) Stop() {
	in.mu.Lock()
	in.stopped = true
	in.mu.Unlock()

	if in.device != nil {
		in.device.Uninit()
	}
	if in.ctx != nil {
		in.ctx.Uninit()
	}
}

// OutputStream owns one playback device. The controller opens one per
// inbound remote track and stops it when that track ends, so it does not
// outlive the peer connection that carried the track. fill is called once per device period and must write exactly
// len(out)/Channels stereo samples (the jitter buffer implements it).
type OutputStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// FillHandler fills one device-rate stereo output block.
type FillHandler func(out []float32)

// OpenOutputStream opens the default playback device, requesting 48kHz
// stereo f32. The sample rate the device reports after init is written to
// deviceRate so the caller's resampler/jitter-buffer can target it. No other
// device config is tried: if init fails, the error is returned.
func OpenOutputStream(deviceRate *int, fill FillHandler) (*OutputStream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = Channels
	cfg.SampleRate = SampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(outBytes, _ []byte, frameCount uint32) {
			out := make([]float32, int(frameCount)*Channels)
			fill(out)
			f32ToBytes(out, outBytes)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if deviceRate != nil {
		*deviceRate = int(device.SampleRate())
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("start playback device: %w", err)
	}
	return &OutputStream{ctx: ctx, device: device}, nil
}

// Stop halts and releases the playback device.
func (out *OutputStream) Stop() {
	if out.device != nil {
		out.device.Uninit()
	}
	if out.ctx != nil {
		out.ctx.Uninit()
	}
}

func bytesToF32(raw []byte, maxSamples int) []float32 {
	n := len(raw) / 4
	if n > maxSamples {
		n = maxSamples
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func f32ToBytes(in []float32, out []byte) {
	for i, s := range in {
		if i*4+4 > len(out) {
			break
		}
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
}

// toStereo up-mixes mono by duplication or down-mixes >2 channels by taking
// the first two. Already-stereo input passes through.
func toStereo(samples []float32, channels int) []float32 {
	switch channels {
	case Channels:
		return samples
	case 1:
		out := make([]float32, len(samples)*2)
		for i, s := range samples {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	default:
		frames := len(samples) / channels
		out := make([]float32, frames*2)
		for i := 0; i < frames; i++ {
			out[i*2] = samples[i*channels]
			out[i*2+1] = samples[i*channels+1]
		}
		return out
	}
}
