package audio

import "gopkg.in/hraban/opus.v2"

// SampleRate and Channels are the fixed internal pipeline contract: 48 kHz
// stereo. FrameSamplesPerChannel/FrameSamples describe one 20 ms frame.
const (
	SampleRate             = 48000
	Channels               = 2
	FrameSamplesPerChannel = 960                                // 20ms @ 48kHz
	FrameSamples           = FrameSamplesPerChannel * Channels  // 1920 interleaved
	maxOpusPacketBytes     = 4000
)

// Encoder encodes 20ms stereo f32 frames to Opus packets.
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder creates an Opus encoder at 48kHz stereo, VoIP-tuned, FEC off.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	enc.SetBitrate(64000)
	enc.SetInBandFEC(false)
	return &Encoder{enc: enc}, nil
}

// Encode encodes exactly one 20ms stereo frame (1920 interleaved f32
// samples) into an Opus packet. The caller must slice frames at that
// boundary; Encode does not buffer partial frames.
func (e *Encoder) Encode(frame []float32) ([]byte, error) {
	out := make([]byte, maxOpusPacketBytes)
	n, err := e.enc.EncodeFloat32(frame, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
