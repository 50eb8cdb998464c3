// Package metrics defines the Sink interface the Event Processor Runtime
// and Command Executor report signals to, plus a Prometheus-backed
// implementation. Grounded on the teacher's own client_golang usage in
// its benchmark harness, generalized into a small signal interface so
// callers aren't coupled to Prometheus directly.
package metrics

import "time"

// Sink receives the runtime/command signals spec.md's observability
// section names. A no-op Sink is valid - callers that don't want
// metrics pass NoOp().
type Sink interface {
	CommandStarted(commandType string)
	CommandSucceeded(commandType string, duration time.Duration)
	CommandFailed(commandType string, reason string)
	IdempotentOperation(commandType string)
	LeadershipChanged(instanceID string, isLeader bool)
	ProcessingCycle(processorID string, eventsHandled int, duration time.Duration)
}

type noop struct{}

// NoOp returns a Sink whose methods do nothing.
func NoOp() Sink { return noop{} }

func (noop) CommandStarted(string)                               {}
func (noop) CommandSucceeded(string, time.Duration)               {}
func (noop) CommandFailed(string, string)                         {}
func (noop) IdempotentOperation(string)                           {}
func (noop) LeadershipChanged(string, bool)                       {}
func (noop) ProcessingCycle(string, int, time.Duration)           {}
