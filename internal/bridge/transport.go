// Package bridge relays encoded messages between a pub/sub transport and
// the worker actor.
package bridge

import "errors"

// Delivery is one inbound payload. Reply is the subject expecting the
// answer, empty when the transport has none.
type Delivery struct {
	Topic string
	Reply string
	Data  []byte
}

type Transport interface {
	Subscribe(topic string, fn func(d *Delivery)) error
	Publish(topic string, data []byte) error
	Close()
}

var ErrNotConnected = errors.New("transport is not connected")
