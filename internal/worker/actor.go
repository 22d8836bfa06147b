package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/dumacp/go-dataworker/internal/dispatch"
	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/dumacp/go-dataworker/internal/metrics"
	"github.com/dumacp/go-logs/pkg/logs"
)

// Handler processes a received indication. Posting the response through
// r is the handler's job; the worker never answers on its behalf except
// for names without a handler.
type Handler func(r *Reply, msg *message.Message)

// Registrar is the registration surface plug-ins install themselves on.
type Registrar interface {
	Register(name string, handler Handler) error
}

type Worker struct {
	handlers     *dispatch.Registry[Handler]
	host         *actor.PID
	debugReports bool
	contxt       context.Context
	cancel       func()
}

func New(opts ...Option) *Worker {
	w := &Worker{
		handlers: dispatch.NewRegistry[Handler](),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.contxt, w.cancel = context.WithCancel(context.Background())
	return w
}

func (w *Worker) Register(name string, handler Handler) error {
	return w.handlers.Register(name, handler)
}

func (w *Worker) RegisterAll(handlers map[string]Handler) error {
	return w.handlers.RegisterAll(handlers)
}

func (w *Worker) Unregister(name string) {
	w.handlers.Unregister(name)
}

// UnregisterAll removes names, or every handler if names is empty.
func (w *Worker) UnregisterAll(names ...string) {
	w.handlers.UnregisterAll(names...)
}

// Names lists the registered message names.
func (w *Worker) Names() []string {
	return w.handlers.Names()
}

// Context is cancelled when the worker actor stops.
func (w *Worker) Context() context.Context {
	return w.contxt
}

func (w *Worker) Props() *actor.Props {
	return actor.PropsFromFunc(w.Receive)
}

func (w *Worker) Receive(ctx actor.Context) {
	logs.LogBuild.Printf("Message arrived in %s: %s, %T, %s",
		ctx.Self().GetId(), ctx.Message(), ctx.Message(), ctx.Sender())
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("started \"%s\", %v", ctx.Self().GetId(), ctx.Self())
	case *actor.Stopping:
		w.cancel()
	case *message.Message:
		if msg == nil {
			break
		}
		w.dispatch(ctx, msg)
	}
}

func (w *Worker) dispatch(ctx actor.Context, msg *message.Message) {
	reply := &Reply{
		root:    ctx.ActorSystem().Root,
		to:      w.replyTo(ctx),
		request: msg,
		contxt:  w.contxt,
	}
	if w.debugReports {
		if data, err := json.Marshal(msg); err == nil {
			reply.PostDebug("received message: " + string(data))
		}
	}

	handler, ok := w.handlers.Lookup(msg.Name)
	if !ok {
		metrics.Messages.WithLabelValues("-", metrics.OutcomeUndefined).Inc()
		logs.LogWarn.Printf("undefined message event %q", msg.Name)
		reply.PostFailed(map[string]interface{}{
			"error": "undefined message event",
			"name":  msg.Name,
		})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.Messages.WithLabelValues(msg.Name, metrics.OutcomePanic).Inc()
			logs.LogError.Printf("handler %q panic: %v", msg.Name, r)
			reply.PostFailed(map[string]interface{}{
				"error": fmt.Sprintf("handler panic: %v", r),
			})
		}
	}()
	handler(reply, msg)
	metrics.Messages.WithLabelValues(msg.Name, metrics.OutcomeHandled).Inc()
}

func (w *Worker) replyTo(ctx actor.Context) *actor.PID {
	if ctx.Sender() != nil {
		return ctx.Sender()
	}
	if ctx.Parent() != nil {
		return ctx.Parent()
	}
	return w.host
}
