package manager

import "ipnis/pkg/types"

// Event is a manager lifecycle event about one model.
//
// Names: model_load_start, model_load_ok, model_load_error, call_start,
// call_ok, call_error.
type Event struct {
	Name string
	Path types.Path
	// Fields carries extras such as the error text or the output count.
	Fields map[string]any
}

// EventPublisher receives events from the manager. Publish is called on the
// request path, so it must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
