package audio

import (
	"math"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	frame := make([]float32, FrameSamples)
	for i := range frame {
		if i%4 < 2 {
			frame[i] = 0.1
		} else {
			frame[i] = -0.1
		}
	}

	packet, err := enc.Encode(frame)
	require.NoError(t, err)
	require.NotEmpty(t, packet)

	pcm, err := dec.Decode(packet)
	require.NoError(t, err)
	require.Equal(t, FrameSamples, len(pcm))
}

func TestDecodeLostProducesConcealedFrame(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)

	// Prime the decoder state with one real frame first; PLC without any
	// prior frame is still valid but less representative of real use.
	enc, err := NewEncoder()
	require.NoError(t, err)
	packet, err := enc.Encode(make([]float32, FrameSamples))
	require.NoError(t, err)
	_, err = dec.Decode(packet)
	require.NoError(t, err)

	pcm, err := dec.DecodeLost(FrameSamplesPerChannel)
	require.NoError(t, err)
	require.Equal(t, FrameSamples, len(pcm))
}

func TestEncodeDecodeSilenceRoundTripStaysNearSilent(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	silence := make([]float32, FrameSamples)
	packet, err := enc.Encode(silence)
	require.NoError(t, err)

	pcm, err := dec.Decode(packet)
	require.NoError(t, err)

	var peak float32
	for _, s := range pcm {
		if abs := float32(math.Abs(float64(s))); abs > peak {
			peak = abs
		}
	}
	require.Less(t, peak, float32(1e-2))
}

// TestEncodeDecodeOverRTPWire exercises the same path handleRemoteTrack runs
// in production: an Opus payload serialized into an RTP packet, parsed back
// out (as pion/webrtc's ReadRTP does), and fed to the decoder.
func TestEncodeDecodeOverRTPWire(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	frame := make([]float32, FrameSamples)
	for i := range frame {
		if i%4 < 2 {
			frame[i] = 0.1
		} else {
			frame[i] = -0.1
		}
	}
	opusPayload, err := enc.Encode(frame)
	require.NoError(t, err)

	sent := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: 1,
			Timestamp:      0,
			SSRC:           0xC0FFEE,
		},
		Payload: opusPayload,
	}
	wire, err := sent.Marshal()
	require.NoError(t, err)

	var received rtp.Packet
	require.NoError(t, received.Unmarshal(wire))
	require.Equal(t, sent.SequenceNumber, received.SequenceNumber)
	require.Equal(t, sent.SSRC, received.SSRC)

	pcm, err := dec.Decode(received.Payload)
	require.NoError(t, err)
	require.Equal(t, FrameSamples, len(pcm))
}

func TestResampleStereoF32_SameRateIsIdentity(t *testing.T) {
	input := []float32{0.1, -0.1, 0.2, -0.2}
	out := ResampleStereoF32(input, 48000, 48000)
	require.Equal(t, input, out)
}

func TestResampleStereoF32_ChangesLength(t *testing.T) {
	input := make([]float32, 441*2) // 10ms at 44.1kHz stereo
	out := ResampleStereoF32(input, 44100, 48000)
	require.InDelta(t, 480, len(out)/2, 2) // ~10ms at 48kHz
}
