package audio

import "gopkg.in/hraban/opus.v2"

// Decoder decodes raw RTP Opus payloads back to interleaved f32 PCM at
// 48kHz stereo.
type Decoder struct {
	dec *opus.Decoder
}

// NewDecoder creates an Opus decoder at 48kHz stereo.
func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes one RTP payload into interleaved f32 PCM, sized for up to
// the largest Opus frame (120ms). The returned slice is freshly allocated
// per call, so callers may retain it across subsequent Decode calls.
func (d *Decoder) Decode(payload []byte) ([]float32, error) {
	pcm := make([]float32, FrameSamplesPerChannel*6*Channels) // up to 120ms
	n, err := d.dec.DecodeFloat32(payload, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n*Channels], nil
}

// DecodeLost runs Opus packet-loss concealment for a dropped RTP packet,
// producing a plausible continuation frame instead of silence.
// samplesPerChannel must match the exact duration of the lost packet, since
// the output is sized from it; DecodePLCFloat32 has no
// way to report how many samples it produced, unlike Decode.
func (d *Decoder) DecodeLost(samplesPerChannel int) ([]float32, error) {
	pcm := make([]float32, samplesPerChannel*Channels)
	if err := d.dec.DecodePLCFloat32(pcm); err != nil {
		return nil, err
	}
	return pcm, nil
}
