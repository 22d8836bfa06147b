// Package metrics declares the Prometheus collectors of the data worker.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dataworker"

var (
	Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Messages received by the worker, by name and dispatch outcome.",
	}, []string{"name", "outcome"})

	StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "Local store operations, by operation and result.",
	}, []string{"op", "result"})

	RemoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_requests_total",
		Help:      "Requests issued to the remote entity service, by kind and result.",
	}, []string{"kind", "result"})
)

// dispatch outcomes
const (
	OutcomeHandled   = "handled"
	OutcomeUndefined = "undefined"
	OutcomePanic     = "panic"
)

// Result returns the label value for an operation result.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Register adds every collector to reg. Collectors already registered
// are not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Messages, StoreOperations, RemoteRequests} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
