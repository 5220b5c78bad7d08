// Package querier defines the capability the session engine needs from a log
// query service: submit a query, poll it, cancel it. Concrete services live in
// the sub-packages.
package querier

import (
	"context"
	"fmt"

	"cwinsights/internal/model"
)

type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Terminal() bool { return s != StatusRunning }

// Stats mirrors what the service reports about the scan so far.
type Stats struct {
	RecordsMatched float64
	RecordsScanned float64
	BytesScanned   float64
}

type PollResult struct {
	Status Status
	// Records not delivered by an earlier Poll of the same query, in the
	// order the service returned them.
	Records []model.Record
	// Reason explains a Failed or Cancelled status.
	Reason string
	Stats  Stats
}

// Client is implemented by every query service variant. Implementations must
// be safe for concurrent use; errors should be wrapped with Transient or
// Permanent so the poller can tell them apart.
type Client interface {
	Submit(ctx context.Context, q model.Query) (model.QueryID, error)
	Poll(ctx context.Context, id model.QueryID) (PollResult, error)
	Cancel(ctx context.Context, id model.QueryID) error
}
