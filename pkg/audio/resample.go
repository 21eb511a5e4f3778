package audio

// ResampleStereoF32 resamples interleaved stereo f32 PCM from inputRate to
// outputRate using linear interpolation. It is a one-shot equivalent of the
// streaming resampler the jitter buffer runs per output sample (see
// pkg/jitter), used on the input side when the capture device does not
// support 48kHz natively.
func ResampleStereoF32(input []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(input) == 0 {
		return input
	}

	frames := len(input) / Channels
	ratio := float64(inputRate) / float64(outputRate)
	outFrames := int(float64(frames) / ratio)
	out := make([]float32, outFrames*Channels)

	pos := 0.0
	for i := 0; i < outFrames; i++ {
		idx := int(pos)
		frac := float32(pos - float64(idx))

		idx2 := idx + 1
		if idx >= frames {
			idx = frames - 1
		}
		if idx2 >= frames {
			idx2 = frames - 1
		}

		for c := 0; c < Channels; c++ {
			a := input[idx*Channels+c]
			b := input[idx2*Channels+c]
			out[i*Channels+c] = a + (b-a)*frac
		}
		pos += ratio
	}
	return out
}
