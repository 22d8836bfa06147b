// Package services assembles the data worker for programs embedding it.
package services

import (
	"github.com/asynkron/protoactor-go/actor"
	"github.com/dumacp/go-dataworker/internal/bridge"
	"github.com/dumacp/go-dataworker/internal/host"
	"github.com/dumacp/go-dataworker/internal/idb"
	"github.com/dumacp/go-dataworker/internal/odata"
	"github.com/dumacp/go-dataworker/internal/plugin"
	"github.com/dumacp/go-dataworker/internal/worker"
)

// NewWorker returns a worker with the IDB, OData and echo handlers
// installed. A nil remote leaves the OData names undefined.
func NewWorker(store *idb.Adapter, remote *odata.Client, opts ...worker.Option) (*worker.Worker, error) {
	w := worker.New(opts...)
	if err := plugin.InstallEcho(w); err != nil {
		return nil, err
	}
	if store != nil {
		if err := plugin.InstallStore(w, store); err != nil {
			return nil, err
		}
	}
	if remote != nil {
		if err := plugin.InstallRemote(w, remote); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// NewHost spawns w and a host talking to it.
func NewHost(root *actor.RootContext, w *worker.Worker) (*host.Host, error) {
	return host.New(root, w.Props())
}

// BridgeActor relays the messages of t under prefix to the worker pid.
func BridgeActor(t bridge.Transport, codec bridge.Codec, prefix string, pid *actor.PID) actor.Actor {
	return bridge.New(t, codec, prefix, pid)
}
