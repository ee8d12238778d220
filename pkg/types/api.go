package types

import (
	"errors"

	"ipnis/pkg/tensor"
)

// Request is the payload of a signed RPC envelope. Exactly one field is set.
type Request struct {
	LoadModel *LoadModelRequest `json:"load_model,omitempty"`
	Call      *CallRequest      `json:"call,omitempty"`
}

// LoadModelRequest asks the server to introspect the model at Path.
type LoadModelRequest struct {
	Path Path `json:"path"`
}

// CallRequest runs Model on the given named inputs.
type CallRequest struct {
	Model  Model           `json:"model"`
	Inputs []tensor.Tensor `json:"inputs"`
}

// Response is the payload of a countersigned RPC envelope. The set field
// mirrors the request.
type Response struct {
	LoadModel *LoadModelResponse `json:"load_model,omitempty"`
	Call      *CallResponse      `json:"call,omitempty"`
}

// LoadModelResponse carries the introspected descriptor.
type LoadModelResponse struct {
	Model Model `json:"model"`
}

// CallResponse carries every declared output, in declared order.
type CallResponse struct {
	Outputs []tensor.Tensor `json:"outputs"`
}

var errRequestVariant = errors.New("request must set exactly one of load_model or call")

// Validate checks that exactly one variant is set.
func (r Request) Validate() error {
	if (r.LoadModel == nil) == (r.Call == nil) {
		return errRequestVariant
	}
	return nil
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: tensor "data": shape mismatched: expected ..., given ...
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// SessionStatus summarizes one cached session for /status.
type SessionStatus struct {
	// Content address of the compiled model.
	Path Path `json:"path"`
	// Number of declared inputs.
	// example: 1
	Inputs int `json:"inputs" example:"1"`
	// Number of declared outputs.
	// example: 1
	Outputs int `json:"outputs" example:"1"`
	// When the session was compiled (unix seconds).
	// example: 1700000000
	CompiledUnix int64 `json:"compiled_unix" example:"1700000000"`
	// Last time a call used this session (unix seconds).
	// example: 1700000100
	LastUsedUnix int64 `json:"last_used_unix" example:"1700000100"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state (ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Engine backing the cache.
	// example: born
	Engine string `json:"engine" example:"born"`
	// Cached sessions.
	Sessions []SessionStatus `json:"sessions"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of LoadModel requests served.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of Call requests served.
	// example: 340
	CallsTotal uint64 `json:"calls_total" example:"340"`
	// Total number of successful compiles.
	// example: 3
	CompilesTotal uint64 `json:"compiles_total" example:"3"`
	// Total number of sessions dropped by the cache bound.
	// example: 0
	EvictionsTotal uint64 `json:"evictions_total" example:"0"`
	// Calls currently running on an engine.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Calls waiting for an engine slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Engine slots.
	// example: 8
	MaxInflight int `json:"max_inflight" example:"8"`
	// Maximum waiting calls before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
}
