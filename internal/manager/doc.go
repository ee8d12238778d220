// Package manager coordinates model introspection and invocation. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor wiring, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - errors.go: error types and helpers (IsTooBusy, IsMissingInput, ...).
//   - admission.go: process-wide queueing in front of Session.Run.
//   - load.go: LoadModel introspection and Warm preloading.
//   - invoke.go: the Call pipeline and its typed variants.
//   - status_report.go: Status and Ready.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus instrumentation.
//
// Compiled sessions live in a SessionCache (see package cache); the manager
// holds no other mutable model state.
package manager
