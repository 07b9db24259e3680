package onnx

import (
	"math"
	"os"
	"testing"
)

func TestNewEnv(t *testing.T) {
	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	t.Log("created ONNX Runtime environment")
}

func TestAvailableProviders(t *testing.T) {
	providers, err := AvailableProviders()
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("providers: %v (cuda=%v)", providers, CUDAAvailable())

	found := false
	for _, p := range providers {
		if p == "CPUExecutionProvider" {
			found = true
		}
	}
	if !found {
		t.Errorf("CPUExecutionProvider missing from %v", providers)
	}
}

func TestNewTensor(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	tensor, err := NewTensor([]int64{2, 3}, data)
	if err != nil {
		t.Fatal(err)
	}
	defer tensor.Close()

	shape, err := tensor.Shape()
	if err != nil {
		t.Fatal(err)
	}
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 3 {
		t.Errorf("shape = %v, want [2,3]", shape)
	}

	out, err := tensor.FloatData()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 6 {
		t.Fatalf("len = %d, want 6", len(out))
	}
	for i, v := range out {
		if v != data[i] {
			t.Errorf("[%d] = %f, want %f", i, v, data[i])
		}
	}
}

func TestTensorEmptyData(t *testing.T) {
	_, err := NewTensor([]int64{0}, nil)
	if err == nil {
		t.Error("expected error for empty data")
	}
}

func TestTensorShortData(t *testing.T) {
	_, err := NewTensor([]int64{2, 3}, []float32{1, 2, 3})
	if err == nil {
		t.Error("expected error for short data")
	}
}

func TestEnvDoubleClose(t *testing.T) {
	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	env.Close()
	env.Close()
}

func TestEmptyModelData(t *testing.T) {
	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	if _, err := env.NewSession(nil); err == nil {
		t.Error("expected error for empty model data")
	}
}

func TestMissingModelFile(t *testing.T) {
	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	if _, err := env.NewSessionFromFile("/nonexistent/model.onnx", nil); err == nil {
		t.Error("expected error for missing model file")
	}
}

// TestScorerONNX runs an exported scorer graph when SONGEVAL_SCORER_ONNX
// points at one.
func TestScorerONNX(t *testing.T) {
	path := os.Getenv("SONGEVAL_SCORER_ONNX")
	if path == "" {
		t.Skip("SONGEVAL_SCORER_ONNX not set")
	}

	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	session, err := env.NewSessionFromFile(path, &SessionOptions{IntraOpThreads: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	inputs, err := session.Inputs()
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := session.Outputs()
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		t.Fatalf("inputs=%v outputs=%v", inputs, outputs)
	}
	t.Logf("inputs: %v outputs: %v", inputs, outputs)

	// [1, T, D] features; resolve dynamic dims to small sizes.
	shape := append([]int64(nil), inputs[0].Shape...)
	total := int64(1)
	for i, d := range shape {
		if d <= 0 {
			shape[i] = 10
			if i == 0 {
				shape[i] = 1
			}
		}
		total *= shape[i]
	}
	data := make([]float32, total)
	for i := range data {
		data[i] = float32(i%100) * 0.01
	}
	input, err := NewTensor(shape, data)
	if err != nil {
		t.Fatal(err)
	}
	defer input.Close()

	out, err := session.Run([]string{inputs[0].Name}, []*Tensor{input}, []string{outputs[0].Name})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer out[0].Close()

	scores, err := out[0].FloatData()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range scores {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("scores[%d] = %f (NaN/Inf)", i, v)
		}
	}
	t.Logf("scores: %v", scores)
}
