package engine

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"ipnis/pkg/tensor"
)

// ONNX protobuf field numbers (onnx.proto3).
const (
	modelGraph = 7

	graphInitializer = 5
	graphInput       = 11
	graphOutput      = 12

	tensorProtoName = 8

	valueInfoName = 1
	valueInfoType = 2

	typeTensor = 1

	tensorTypeElem  = 1
	tensorTypeShape = 2

	shapeDim = 1

	dimValue = 1
	dimParam = 2
)

// ONNX TensorProto.DataType values.
const (
	onnxFloat = 1
	onnxUint8 = 2
	onnxInt64 = 7
)

var errNoGraph = errors.New("onnx: model has no graph")

// ReadSignatures lists the graph inputs and outputs of an ONNX model.
// Inputs backed by an initializer are weights, not caller inputs, and are
// left out. Symbolic dimensions read as tensor.Any.
func ReadSignatures(model []byte) (inputs, outputs []Signature, err error) {
	var graph []byte
	err = walk(model, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == modelGraph && typ == protowire.BytesType {
			graph = v
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("onnx: %w", err)
	}
	if graph == nil {
		return nil, nil, errNoGraph
	}

	weights := map[string]bool{}
	err = walk(graph, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case graphInput:
			sig, err := readValueInfo(v)
			if err != nil {
				return err
			}
			inputs = append(inputs, sig)
		case graphOutput:
			sig, err := readValueInfo(v)
			if err != nil {
				return err
			}
			outputs = append(outputs, sig)
		case graphInitializer:
			name, err := readString(v, tensorProtoName)
			if err != nil {
				return err
			}
			weights[name] = true
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("onnx graph: %w", err)
	}

	caller := inputs[:0]
	for _, in := range inputs {
		if !weights[in.Name] {
			caller = append(caller, in)
		}
	}
	return caller, outputs, nil
}

func readValueInfo(b []byte) (Signature, error) {
	var sig Signature
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == valueInfoName && typ == protowire.BytesType:
			sig.Name = string(v)
		case num == valueInfoType && typ == protowire.BytesType:
			return walk(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num == typeTensor && typ == protowire.BytesType {
					return readTensorType(v, &sig)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return Signature{}, err
	}
	if sig.Dims == nil {
		sig.Dims = []tensor.Dim{}
	}
	return sig, nil
}

func readTensorType(b []byte, sig *Signature) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == tensorTypeElem && typ == protowire.VarintType:
			n, _ := protowire.ConsumeVarint(v)
			sig.Type = elementType(n)
		case num == tensorTypeShape && typ == protowire.BytesType:
			sig.Dims = []tensor.Dim{}
			return walk(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num == shapeDim && typ == protowire.BytesType {
					sig.Dims = append(sig.Dims, readDim(v))
				}
				return nil
			})
		}
		return nil
	})
}

func readDim(b []byte) tensor.Dim {
	d := tensor.Any
	_ = walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == dimValue && typ == protowire.VarintType {
			n, _ := protowire.ConsumeVarint(v)
			if int64(n) >= 0 {
				d = tensor.Dim(int64(n))
			}
		}
		return nil
	})
	return d
}

func readString(b []byte, field protowire.Number) (string, error) {
	var s string
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == field && typ == protowire.BytesType {
			s = string(v)
		}
		return nil
	})
	return s, err
}

func elementType(onnx uint64) tensor.ElementType {
	switch onnx {
	case onnxFloat:
		return tensor.Float32
	case onnxUint8:
		return tensor.Uint8
	case onnxInt64:
		return tensor.Int64
	}
	return 0
}

// walk calls fn for every top-level field of a protobuf message. For
// length-delimited fields v is the payload; for other wire types v is the
// encoded value.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var v []byte
		if typ == protowire.BytesType {
			v, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				v = b[:n]
			}
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := fn(num, typ, v); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
