package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pomelodrive/pomelo/internal/logging"
	"github.com/pomelodrive/pomelo/internal/metrics"
	"github.com/pomelodrive/pomelo/internal/rest"
)

// OperationStatus is the wire shape of a server-tracked asynchronous job.
type OperationStatus struct {
	Operation  string  `json:"operation"`
	Percentage float64 `json:"percentageComplete"`
	ResourceID string  `json:"resourceId"`
	Status     string  `json:"status"`
}

// Completed reports whether the job reached its terminal status.
func (s *OperationStatus) Completed() bool {
	return s.Status == "completed"
}

// PollOutcome tags the result of awaiting an asynchronous operation.
type PollOutcome int

const (
	PollCompleted PollOutcome = iota
	PollCancelled
	PollFailed
)

// PollResult is the tagged outcome of Poller.Await. Exactly one of Status
// (for PollCompleted) and Err (for PollFailed) is set; cancellation is an
// outcome of its own, not an error.
type PollResult struct {
	Outcome PollOutcome
	Status  *OperationStatus
	Err     error
}

// Registry tracks the cancel handles of every in-flight poll so a single
// CancelAll — logout — stops them all. Entries remove themselves when a
// poll ends for any reason.
type Registry struct {
	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cancels: make(map[int]context.CancelFunc)}
}

func (r *Registry) add(cancel context.CancelFunc) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.cancels[r.nextID] = cancel
	return r.nextID
}

func (r *Registry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// Len returns the number of in-flight polls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// CancelAll cancels every registered poll.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, cancel := range r.cancels {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Poller long-polls a server-tracked asynchronous job until it completes
// or the poll is cancelled.
type Poller struct {
	client   *rest.Client
	registry *Registry
	interval time.Duration
}

// NewPoller creates a poller. Polls are registered in registry for the
// duration of each Await.
func NewPoller(client *rest.Client, registry *Registry, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{client: client, registry: registry, interval: interval}
}

// Await polls operationURL until the job completes, a GET fails, or the
// poll is cancelled — either through ctx or through the registry. There is
// no retry cap: cancellation is the designed bound. Monitor URLs are
// pre-authorized, so no auth header is attached.
func (p *Poller) Await(ctx context.Context, operationURL string) PollResult {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := p.registry.add(cancel)
	defer p.registry.remove(id)

	logging.Debug("awaiting async operation", zap.String("url", operationURL))

	for {
		if pollCtx.Err() != nil {
			metrics.RecordOperationOutcome("cancelled")
			return PollResult{Outcome: PollCancelled}
		}

		metrics.RecordPollRound()
		resp, err := p.client.Do(pollCtx, rest.Request{
			Method: http.MethodGet,
			URL:    operationURL,
			NoAuth: true,
		})
		if err != nil {
			if pollCtx.Err() != nil {
				metrics.RecordOperationOutcome("cancelled")
				return PollResult{Outcome: PollCancelled}
			}
			metrics.RecordOperationOutcome("failed")
			return PollResult{Outcome: PollFailed, Err: err}
		}

		var status OperationStatus
		if err := json.Unmarshal(resp.Body, &status); err != nil {
			metrics.RecordOperationOutcome("failed")
			return PollResult{Outcome: PollFailed, Err: err}
		}

		if status.Completed() {
			logging.Debug("async operation completed",
				zap.String("resource_id", status.ResourceID))
			metrics.RecordOperationOutcome("completed")
			return PollResult{Outcome: PollCompleted, Status: &status}
		}

		logging.Debug("async operation in progress",
			zap.Float64("percentage", status.Percentage))

		select {
		case <-pollCtx.Done():
			metrics.RecordOperationOutcome("cancelled")
			return PollResult{Outcome: PollCancelled}
		case <-time.After(p.interval):
		}
	}
}
