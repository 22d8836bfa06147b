package worker

import "github.com/dumacp/go-dataworker/internal/message"

// Echo answers with the data of the request.
func Echo(r *Reply, msg *message.Message) {
	r.PostCompleted(msg.Data)
}
