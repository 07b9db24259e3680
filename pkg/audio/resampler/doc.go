// Package resampler provides sample rate conversion for float PCM audio
// using a pure Go polyphase resampler (no CGO dependencies).
//
// It supports:
//   - Sample rate conversion (e.g., 44100Hz to 24000Hz)
//   - Channel folding (multi-channel to mono by averaging)
//
// Example usage:
//
//	src := resampler.Format{SampleRate: 44100, Channels: 2}
//	mono24k, err := resampler.Resample(samples, src, 24000)
//	if err != nil {
//	    log.Fatal(err)
//	}
package resampler
