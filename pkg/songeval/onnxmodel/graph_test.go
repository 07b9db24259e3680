package onnxmodel

import (
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// identityGraph encodes a minimal ONNX model with a single Identity node
// from input to output. Both tensors are float with shape [batch, time].
func identityGraph(input, output string) []byte {
	valueInfo := func(name string) []byte {
		var dims []byte
		for _, param := range []string{"batch", "time"} {
			var dim []byte
			dim = protowire.AppendTag(dim, 2, protowire.BytesType) // dim_param
			dim = protowire.AppendString(dim, param)
			dims = protowire.AppendTag(dims, 1, protowire.BytesType) // dim
			dims = protowire.AppendBytes(dims, dim)
		}
		var tensor []byte
		tensor = protowire.AppendTag(tensor, 1, protowire.VarintType) // elem_type
		tensor = protowire.AppendVarint(tensor, 1)                     // FLOAT
		tensor = protowire.AppendTag(tensor, 2, protowire.BytesType)   // shape
		tensor = protowire.AppendBytes(tensor, dims)

		var typ []byte
		typ = protowire.AppendTag(typ, 1, protowire.BytesType) // tensor_type
		typ = protowire.AppendBytes(typ, tensor)

		var vi []byte
		vi = protowire.AppendTag(vi, 1, protowire.BytesType) // name
		vi = protowire.AppendString(vi, name)
		vi = protowire.AppendTag(vi, 2, protowire.BytesType) // type
		return protowire.AppendBytes(vi, typ)
	}

	var node []byte
	node = protowire.AppendTag(node, 1, protowire.BytesType) // input
	node = protowire.AppendString(node, input)
	node = protowire.AppendTag(node, 2, protowire.BytesType) // output
	node = protowire.AppendString(node, output)
	node = protowire.AppendTag(node, 4, protowire.BytesType) // op_type
	node = protowire.AppendString(node, "Identity")

	var graph []byte
	graph = protowire.AppendTag(graph, 1, protowire.BytesType) // node
	graph = protowire.AppendBytes(graph, node)
	graph = protowire.AppendTag(graph, 2, protowire.BytesType) // name
	graph = protowire.AppendString(graph, "identity")
	graph = protowire.AppendTag(graph, 11, protowire.BytesType) // input
	graph = protowire.AppendBytes(graph, valueInfo(input))
	graph = protowire.AppendTag(graph, 12, protowire.BytesType) // output
	graph = protowire.AppendBytes(graph, valueInfo(output))

	var opset []byte
	opset = protowire.AppendTag(opset, 2, protowire.VarintType) // version
	opset = protowire.AppendVarint(opset, 13)

	var model []byte
	model = protowire.AppendTag(model, 1, protowire.VarintType) // ir_version
	model = protowire.AppendVarint(model, 8)
	model = protowire.AppendTag(model, 7, protowire.BytesType) // graph
	model = protowire.AppendBytes(model, graph)
	model = protowire.AppendTag(model, 8, protowire.BytesType) // opset_import
	return protowire.AppendBytes(model, opset)
}

func writeGraph(t *testing.T, dir, name, input, output string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), identityGraph(input, output), 0o644); err != nil {
		t.Fatal(err)
	}
}
