package manager

import (
	"context"
	"time"
)

// admit reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (h *ModelHandler) admit(ctx context.Context) (func(), error) {
	h.mu.RLock()
	draining := h.draining
	h.mu.RUnlock()
	// If draining, reject new work to allow graceful shutdown
	if draining {
		return func() {}, h.busy("shutting down")
	}

	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(h.maxWait)
	defer timer.Stop()
	select {
	case h.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, h.busy("queue full")
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-h.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case h.genCh <- struct{}{}:
		acquired = true
		return func() { <-h.genCh; <-h.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, h.busy("timed out waiting for the pipeline")
	}
}

func (h *ModelHandler) busy(reason string) error {
	backpressure.Inc()
	h.publisher.Publish(Event{Name: EventBackpressure, Fields: map[string]any{"reason": reason}})
	return ErrTooBusy(reason)
}
