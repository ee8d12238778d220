// Package enginetest builds small ONNX models and fake engines for tests.
package enginetest

import "google.golang.org/protobuf/encoding/protowire"

// ONNX element type codes.
const (
	Float = 1
	Uint8 = 2
	Int64 = 7
	Bool  = 9
)

// Value is a graph input or output. A negative dim is written as a
// symbolic dim_param.
type Value struct {
	Name string
	Elem int
	Dims []int64
}

// Node is one operator in the graph.
type Node struct {
	Op      string
	Inputs  []string
	Outputs []string
}

// Graph describes a model. Initializers are emitted as empty f32 tensors
// with the given names.
type Graph struct {
	Inputs       []Value
	Outputs      []Value
	Nodes        []Node
	Initializers []string
	External     []ExternalTensor
}

// ExternalTensor is an f32 initializer whose raw little-endian data lives in
// a file next to the model.
type ExternalTensor struct {
	Name     string
	Dims     []int64
	Location string
}

// Identity is a one-node model copying in to out.
func Identity(in, out Value) []byte {
	return Build(Graph{
		Inputs:  []Value{in},
		Outputs: []Value{out},
		Nodes:   []Node{{Op: "Identity", Inputs: []string{in.Name}, Outputs: []string{out.Name}}},
	})
}

// Build encodes g as an ONNX ModelProto with opset 13.
func Build(g Graph) []byte {
	var graph []byte
	for i, n := range g.Nodes {
		var node []byte
		for _, in := range n.Inputs {
			node = appendString(node, 1, in)
		}
		for _, out := range n.Outputs {
			node = appendString(node, 2, out)
		}
		node = appendString(node, 3, n.Op+"_"+string(rune('0'+i)))
		node = appendString(node, 4, n.Op)
		graph = appendMessage(graph, 1, node)
	}
	graph = appendString(graph, 2, "graph")
	for _, name := range g.Initializers {
		var t []byte
		t = protowire.AppendTag(t, 2, protowire.VarintType)
		t = protowire.AppendVarint(t, Float)
		t = appendString(t, 8, name)
		graph = appendMessage(graph, 5, t)
	}
	for _, e := range g.External {
		var t []byte
		for _, d := range e.Dims {
			t = protowire.AppendTag(t, 1, protowire.VarintType)
			t = protowire.AppendVarint(t, uint64(d))
		}
		t = protowire.AppendTag(t, 2, protowire.VarintType)
		t = protowire.AppendVarint(t, Float)
		t = appendString(t, 8, e.Name)
		var loc []byte
		loc = appendString(loc, 1, "location")
		loc = appendString(loc, 2, e.Location)
		t = appendMessage(t, 13, loc)
		// data_location = EXTERNAL
		t = protowire.AppendTag(t, 14, protowire.VarintType)
		t = protowire.AppendVarint(t, 1)
		graph = appendMessage(graph, 5, t)
	}
	for _, v := range g.Inputs {
		graph = appendMessage(graph, 11, valueInfo(v))
	}
	for _, v := range g.Outputs {
		graph = appendMessage(graph, 12, valueInfo(v))
	}

	var model []byte
	model = protowire.AppendTag(model, 1, protowire.VarintType)
	model = protowire.AppendVarint(model, 7)
	var opset []byte
	opset = appendString(opset, 1, "")
	opset = protowire.AppendTag(opset, 2, protowire.VarintType)
	opset = protowire.AppendVarint(opset, 13)
	model = appendMessage(model, 8, opset)
	model = appendMessage(model, 7, graph)
	return model
}

func valueInfo(v Value) []byte {
	var shape []byte
	for _, d := range v.Dims {
		var dim []byte
		if d < 0 {
			dim = appendString(dim, 2, "N")
		} else {
			dim = protowire.AppendTag(dim, 1, protowire.VarintType)
			dim = protowire.AppendVarint(dim, uint64(d))
		}
		shape = appendMessage(shape, 1, dim)
	}
	var tt []byte
	tt = protowire.AppendTag(tt, 1, protowire.VarintType)
	tt = protowire.AppendVarint(tt, uint64(v.Elem))
	tt = appendMessage(tt, 2, shape)

	var typ []byte
	typ = appendMessage(typ, 1, tt)

	var vi []byte
	vi = appendString(vi, 1, v.Name)
	vi = appendMessage(vi, 2, typ)
	return vi
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}
