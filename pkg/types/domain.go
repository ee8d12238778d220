package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"ipnis/pkg/tensor"
)

// Path addresses a model blob by content: the hex sha256 of its bytes and
// its length in bytes.
type Path struct {
	// Hex-encoded sha256 of the blob.
	// example: 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
	Hash string `json:"hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
	// Blob length in bytes.
	// example: 102502400
	Len uint64 `json:"len" example:"102502400"`
}

// Validate checks that the hash is a 64-character hex digest.
func (p Path) Validate() error {
	if len(p.Hash) != 64 {
		return fmt.Errorf("content path: hash must be 64 hex characters, got %d", len(p.Hash))
	}
	if _, err := hex.DecodeString(p.Hash); err != nil {
		return fmt.Errorf("content path: %w", err)
	}
	return nil
}

// String renders the path as "<hash>:<len>".
func (p Path) String() string { return p.Hash + ":" + strconv.FormatUint(p.Len, 10) }

// ParsePath parses the "<hash>:<len>" form produced by String.
func ParsePath(s string) (Path, error) {
	hash, n, ok := strings.Cut(s, ":")
	if !ok {
		return Path{}, fmt.Errorf("content path %q: want <hash>:<len>", s)
	}
	size, err := strconv.ParseUint(n, 10, 64)
	if err != nil {
		return Path{}, fmt.Errorf("content path %q: %w", s, err)
	}
	p := Path{Hash: strings.ToLower(hash), Len: size}
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}

// Model describes a compiled-on-demand ONNX model: where its bytes live and
// the declared shapes of its inputs and outputs, in engine order.
type Model struct {
	// Optional human-friendly name.
	// example: resnet50-v2
	Name string `json:"name,omitempty" example:"resnet50-v2"`
	// Content address of the ONNX blob.
	Path Path `json:"path"`
	// Declared inputs in the order the engine expects them.
	Inputs []tensor.Shape `json:"inputs"`
	// Declared outputs in the order the engine produces them.
	Outputs []tensor.Shape `json:"outputs"`
}
