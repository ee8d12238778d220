package manager

import (
	"context"
	"time"
)

// admit reserves a queue slot and then one of the run slots, waiting at
// most maxWait for each. The returned release must be called once the run
// has finished, even if the caller has gone away.
func (m *Manager) admit(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		backpressureTotal.WithLabelValues("queue_full").Inc()
		return func() {}, tooBusyError{reason: "queue full"}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.runCh <- struct{}{}:
		acquired = true
		return func() { <-m.runCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		backpressureTotal.WithLabelValues("wait_timeout").Inc()
		return func() {}, tooBusyError{reason: "timed out waiting for a run slot"}
	}
}
