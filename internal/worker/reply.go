package worker

import (
	"context"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/dumacp/go-logs/pkg/logs"
)

// Reply posts reports answering one received indication. It is safe to
// keep and use from other goroutines after the handler returns.
type Reply struct {
	root    *actor.RootContext
	to      *actor.PID
	request *message.Message
	contxt  context.Context
}

// Context lives as long as the worker that received the request.
func (r *Reply) Context() context.Context {
	return r.contxt
}

func (r *Reply) Request() *message.Message {
	return r.request
}

// Post sends a report echoing the request name and id.
func (r *Reply) Post(status message.Status, result interface{}) {
	src := &message.Message{
		Name:   message.Undefined,
		Status: status,
		Result: result,
	}
	if r.request != nil {
		if len(r.request.Name) > 0 {
			src.Name = r.request.Name
		}
		src.ID = r.request.ID
	}
	report := message.NewReport(src)
	if r.to == nil || r.root == nil {
		logs.LogWarn.Printf("no listener for report %s", report)
		return
	}
	r.root.Send(r.to, report)
}

func (r *Reply) PostCompleted(result interface{}) {
	r.Post(message.StatusCompleted, result)
}

func (r *Reply) PostFailed(result interface{}) {
	r.Post(message.StatusFailed, result)
}

func (r *Reply) PostSuccess(result interface{}) {
	r.Post(message.StatusSuccess, result)
}

func (r *Reply) PostInfo(result interface{}) {
	r.Post(message.StatusInfo, result)
}

func (r *Reply) PostDebug(result interface{}) {
	r.Post(message.StatusDebug, result)
}

// Fail posts err as a failed report.
func (r *Reply) Fail(err error) {
	r.PostFailed(message.ErrorResult(err))
}
