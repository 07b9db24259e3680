// Package audio groups the audio sub-packages used to prepare songs for
// evaluation:
//
//   - pcm: PCM formats and sample conversions
//   - resampler: sample-rate conversion and downmix
//   - audiofile: WAV and MP3 decoding to mono float32 at a target rate
//
// Example usage:
//
//	import "github.com/haoheliu/SongEval/pkg/audio/audiofile"
//
//	wav, err := audiofile.Load("song.mp3", 24000)
package audio
