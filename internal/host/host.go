// Package host is the requesting side of a worker: it posts indications
// and routes the reports back to pending calls or name handlers.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/dumacp/go-dataworker/internal/dispatch"
	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/google/uuid"
)

// Listener receives the reports of one message name.
type Listener func(msg *message.Message)

type Host struct {
	root     *actor.RootContext
	pid      *actor.PID
	worker   *actor.PID
	handlers *dispatch.Registry[Listener]
	mux      sync.Mutex
	pending  map[string]chan *message.Message
	evs      *eventstream.EventStream
}

// New spawns the worker from props and the host actor receiving its
// reports.
func New(root *actor.RootContext, workerProps *actor.Props) (*Host, error) {
	if root == nil {
		root = actor.NewActorSystem().Root
	}
	h := &Host{
		root:     root,
		handlers: dispatch.NewRegistry[Listener](),
		pending:  make(map[string]chan *message.Message),
		evs:      &eventstream.EventStream{},
	}
	pid, err := root.SpawnNamed(actor.PropsFromFunc(h.Receive), fmt.Sprintf("host-%d", time.Now().UnixNano()))
	if err != nil {
		return nil, err
	}
	h.pid = pid
	wpid, err := root.SpawnNamed(workerProps, fmt.Sprintf("worker-%d", time.Now().UnixNano()))
	if err != nil {
		root.Stop(pid)
		return nil, err
	}
	h.worker = wpid
	return h, nil
}

func (h *Host) PID() *actor.PID {
	return h.pid
}

func (h *Host) Worker() *actor.PID {
	return h.worker
}

// On registers the listener for reports named name, replacing any
// previous one.
func (h *Host) On(name string, fn Listener) error {
	return h.handlers.Register(name, fn)
}

func (h *Host) Off(name string) {
	h.handlers.Unregister(name)
}

// Subscribe receives every debug and info report.
func (h *Host) Subscribe(fn func(msg *message.Message)) *eventstream.Subscription {
	return h.evs.Subscribe(func(evt interface{}) {
		if m, ok := evt.(*message.Message); ok {
			fn(m)
		}
	})
}

func (h *Host) Unsubscribe(sub *eventstream.Subscription) {
	h.evs.Unsubscribe(sub)
}

// Post sends msg to the worker and returns its correlation id, assigned
// when empty.
func (h *Host) Post(msg *message.Message) string {
	if len(msg.ID) == 0 {
		msg.ID = uuid.New().String()
	}
	h.root.RequestWithCustomSender(h.worker, msg, h.pid)
	return msg.ID
}

// Call posts msg and waits for its completed, success or failed report.
// A failed report is returned along with its error.
func (h *Host) Call(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if len(msg.ID) == 0 {
		msg.ID = uuid.New().String()
	}
	ch := make(chan *message.Message, 1)
	h.mux.Lock()
	h.pending[msg.ID] = ch
	h.mux.Unlock()

	h.Post(msg)
	select {
	case report := <-ch:
		return report, report.Err()
	case <-ctx.Done():
		h.mux.Lock()
		delete(h.pending, msg.ID)
		h.mux.Unlock()
		return nil, ctx.Err()
	}
}

// Close stops the worker, then the host actor.
func (h *Host) Close() {
	if err := h.root.PoisonFuture(h.worker).Wait(); err != nil {
		logs.LogWarn.Printf("stop worker: %s", err)
	}
	if err := h.root.PoisonFuture(h.pid).Wait(); err != nil {
		logs.LogWarn.Printf("stop host: %s", err)
	}
}

func (h *Host) Receive(ctx actor.Context) {
	logs.LogBuild.Printf("Message arrived in %s: %s, %T, %s",
		ctx.Self().GetId(), ctx.Message(), ctx.Message(), ctx.Sender())
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("started \"%s\", %v", ctx.Self().GetId(), ctx.Self())
	case *message.Message:
		h.dispatch(msg)
	}
}

func (h *Host) dispatch(msg *message.Message) {
	switch msg.Status {
	case message.StatusDebug:
		logs.LogBuild.Printf("worker debug %s: %v", msg, msg.Result)
		h.evs.Publish(msg)
		return
	case message.StatusInfo:
		logs.LogInfo.Printf("worker info %s: %v", msg, msg.Result)
		h.evs.Publish(msg)
		return
	}

	delivered := false
	if len(msg.ID) > 0 {
		h.mux.Lock()
		ch, ok := h.pending[msg.ID]
		delete(h.pending, msg.ID)
		h.mux.Unlock()
		if ok {
			ch <- msg
			delivered = true
		}
	}
	fn, ok := h.handlers.Lookup(msg.Name)
	if !ok {
		if !delivered {
			logs.LogError.Printf("undefined message event %s", msg.Name)
		}
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				logs.LogError.Printf("listener %q panic: %v", msg.Name, r)
			}
		}()
		fn(msg)
	}()
}
