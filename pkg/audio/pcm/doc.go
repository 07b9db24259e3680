// Package pcm provides types and utilities for working with PCM (Pulse Code Modulation) audio data.
//
// The package defines mono 16-bit formats at the sample rates used by the
// songeval models, and conversions from integer PCM to normalized float32
// samples.
//
// Example usage:
//
//	format := pcm.L16Mono24K
//
//	// Normalize decoded 16-bit PCM and fold stereo to mono
//	samples := pcm.Downmix(pcm.Int16ToFloat32(data), 2)
//
//	// How long is it?
//	d := format.SampleDuration(len(samples))
package pcm
