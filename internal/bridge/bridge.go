package bridge

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/google/uuid"
)

// Bridge subscribes "<prefix>.request" and forwards every decoded
// message to the worker. Reports answering a request that carried a
// reply subject are published there, everything else on
// "<prefix>.report".
type Bridge struct {
	transport Transport
	codec     Codec
	worker    *actor.PID
	request   string
	report    string
	replies   map[string]string
}

func New(transport Transport, codec Codec, prefix string, worker *actor.PID) *Bridge {
	if codec == nil {
		codec = JSON{}
	}
	return &Bridge{
		transport: transport,
		codec:     codec,
		worker:    worker,
		request:   prefix + ".request",
		report:    prefix + ".report",
		replies:   make(map[string]string),
	}
}

func (b *Bridge) Props() *actor.Props {
	return actor.PropsFromFunc(b.Receive)
}

func (b *Bridge) Receive(ctx actor.Context) {
	logs.LogBuild.Printf("Message arrived in %s: %s, %T, %s",
		ctx.Self().GetId(), ctx.Message(), ctx.Message(), ctx.Sender())
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		rootctx := ctx.ActorSystem().Root
		self := ctx.Self()
		if err := b.transport.Subscribe(b.request, func(d *Delivery) {
			rootctx.Send(self, d)
		}); err != nil {
			logs.LogError.Printf("subscribe %q: %s", b.request, err)
			break
		}
		logs.LogInfo.Printf("started \"%s\", %v", ctx.Self().GetId(), ctx.Self())
	case *Delivery:
		b.forward(ctx, msg)
	case *message.Message:
		b.publish(msg)
	}
}

func (b *Bridge) forward(ctx actor.Context, d *Delivery) {
	msg, err := b.codec.Unmarshal(d.Data)
	if err != nil {
		logs.LogWarn.Printf("decode %s message from %q: %s", b.codec.Name(), d.Topic, err)
		b.send(d.Reply, message.NewReport(&message.Message{
			Status: message.StatusFailed,
			Result: message.ErrorResult(fmt.Errorf("decode message: %w", err)),
		}))
		return
	}
	msg = message.NewIndication(msg)
	if len(msg.ID) == 0 {
		msg.ID = uuid.New().String()
	}
	if len(d.Reply) > 0 {
		b.replies[msg.ID] = d.Reply
	}
	ctx.Request(b.worker, msg)
}

func (b *Bridge) publish(report *message.Message) {
	reply, ok := b.replies[report.ID]
	if !ok || !report.Status.Terminal() {
		b.send("", report)
		return
	}
	delete(b.replies, report.ID)
	b.send(reply, report)
}

func (b *Bridge) send(topic string, report *message.Message) {
	if len(topic) == 0 {
		topic = b.report
	}
	data, err := b.codec.Marshal(report)
	if err != nil {
		logs.LogError.Printf("encode report %s: %s", report, err)
		return
	}
	if err := b.transport.Publish(topic, data); err != nil {
		logs.LogError.Printf("publish report %s to %q: %s", report, topic, err)
	}
}
