package opt

import (
	"errors"
	"fmt"

	"roadplan/internal/graph"
)

var (
	ErrNodeUnreachable      = errors.New("node unreachable")
	ErrInvalidEdge          = errors.New("invalid edge")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrTimeWindowViolated   = errors.New("time window violated")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrSeedInfeasible       = errors.New("seed solution infeasible")
)

// Infeasible explains why a solution was rejected. Reason is one of
// ErrInvalidEdge, ErrCapacityExceeded or ErrTimeWindowViolated.
type Infeasible struct {
	Reason  error
	Vehicle int
	From    graph.Node
	To      graph.Node
	Detail  string
}

func (e *Infeasible) Error() string {
	msg := fmt.Sprintf("vehicle %d: %v", e.Vehicle, e.Reason)
	if e.From != "" || e.To != "" {
		msg += fmt.Sprintf(" on %s->%s", e.From, e.To)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Infeasible) Unwrap() error { return e.Reason }

// UnreachableError reports the vehicle whose end cannot be reached from its start.
type UnreachableError struct {
	Vehicle int
	Start   graph.Node
	End     graph.Node
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("vehicle %d: %s not reachable from %s", e.Vehicle, e.End, e.Start)
}

func (e *UnreachableError) Unwrap() error { return ErrNodeUnreachable }
