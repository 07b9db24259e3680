package pcm

// Int16ToFloat32 converts little-endian signed 16-bit samples to float32
// samples in [-1, 1). A trailing odd byte is ignored.
func Int16ToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(b[2*i]) | int16(b[2*i+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// IntToFloat32 converts integer samples of the given bit depth to float32
// samples in [-1, 1). 8-bit samples are treated as unsigned, as stored in
// RIFF/WAVE files.
func IntToFloat32(samples []int, bitDepth int) []float32 {
	out := make([]float32, len(samples))
	if bitDepth == 8 {
		for i, s := range samples {
			out[i] = float32(s-128) / 128
		}
		return out
	}
	scale := float32(int64(1) << (bitDepth - 1))
	for i, s := range samples {
		out[i] = float32(s) / scale
	}
	return out
}

// Downmix averages interleaved multi-channel samples into a mono signal.
// Mono input is returned unchanged. A trailing partial frame is dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
