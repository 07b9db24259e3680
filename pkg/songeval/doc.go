// Package songeval scores songs on five aesthetic dimensions: Coherence,
// Musicality, Memorability, Clarity and Naturalness.
//
// Scoring runs two pretrained models in sequence. A feature extractor
// (MuQ) turns a 24 kHz mono waveform into hidden states, and a scorer maps
// the hidden state of one layer to the five values. Models are provided by
// a registered Backend; import github.com/haoheliu/SongEval/pkg/songeval/onnxmodel
// for the ONNX Runtime backend.
//
// Basic use:
//
//	ev, err := songeval.New(nil)
//	if err != nil {
//		return err
//	}
//	defer ev.Close()
//	scores, err := ev.EvaluateSong(ctx, "song.wav")
package songeval
