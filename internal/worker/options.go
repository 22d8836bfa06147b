package worker

import "github.com/asynkron/protoactor-go/actor"

type Option func(*Worker)

// WithHost sets the listener for requests that arrive without sender
// and without parent.
func WithHost(pid *actor.PID) Option {
	return func(w *Worker) {
		w.host = pid
	}
}

// WithDebugReports posts a debug report for every received message.
func WithDebugReports(enable bool) Option {
	return func(w *Worker) {
		w.debugReports = enable
	}
}
