package plugin

import (
	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/dumacp/go-dataworker/internal/worker"
	"github.com/dumacp/go-dataworker/pkg/messages"
)

// InstallRemote registers the OData.* handlers. Configuration requests
// answer completed, count and list answer success.
func InstallRemote(reg worker.Registrar, remote Remote) error {
	return register(reg, map[string]worker.Handler{
		messages.ODataSetURI:            handleSetURI(remote),
		messages.ODataSetAuthentication: handleSetAuthentication(remote),
		messages.ODataGetCount:          handleGetCount(remote),
		messages.ODataGetList:           handleGetList(remote),
	})
}

func decodeOData(msg *message.Message) (*messages.ODataRequest, error) {
	req := &messages.ODataRequest{}
	if err := message.Decode(msg.Data, req); err != nil {
		return nil, err
	}
	return req, nil
}

func handleSetURI(remote Remote) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeOData(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		remote.SetURI(req.URI)
		r.PostCompleted(nil)
	}
}

func handleSetAuthentication(remote Remote) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeOData(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		remote.SetAuthentication(req.User, req.Password)
		r.PostCompleted(nil)
	}
}

func handleGetCount(remote Remote) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeOData(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		go func() {
			n, err := remote.GetCount(r.Context(), req.Query)
			if err != nil {
				r.Fail(err)
				return
			}
			r.PostSuccess(n)
		}()
	}
}

func handleGetList(remote Remote) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeOData(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		go func() {
			list, err := remote.GetList(r.Context(), req.Query)
			if err != nil {
				r.Fail(err)
				return
			}
			r.PostSuccess(list)
		}()
	}
}

// InstallEcho registers the echo handler.
func InstallEcho(reg worker.Registrar) error {
	return reg.Register(messages.Echo, worker.Echo)
}
