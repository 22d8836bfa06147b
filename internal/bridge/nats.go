package bridge

import (
	"fmt"
	"sync"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/nats-io/nats.go"
	"golang.org/x/oauth2"
)

type NATSTransport struct {
	mux  sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

// TokenOpt authenticates the connection with the access token of tks,
// refreshed on every reconnect.
func TokenOpt(tks oauth2.TokenSource) (nats.Option, error) {
	if _, err := tks.Token(); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	return nats.TokenHandler(func() string {
		t, err := tks.Token()
		if err != nil {
			logs.LogWarn.Printf("nats token: %s", err)
			return ""
		}
		return t.AccessToken
	}), nil
}

func NewNATSTransport(url string, opts ...nats.Option) (*NATSTransport, error) {
	opts = append(opts,
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				logs.LogWarn.Printf("error nats connection: %s", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logs.LogInfo.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed NewConn: %w", err)
	}
	return &NATSTransport{conn: conn}, nil
}

func (t *NATSTransport) Subscribe(topic string, fn func(d *Delivery)) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	sub, err := t.conn.Subscribe(topic, func(m *nats.Msg) {
		fn(&Delivery{Topic: m.Subject, Reply: m.Reply, Data: m.Data})
	})
	if err != nil {
		return err
	}
	t.subs = append(t.subs, sub)
	return nil
}

func (t *NATSTransport) Publish(topic string, data []byte) error {
	t.mux.Lock()
	conn := t.conn
	t.mux.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(topic, data)
}

// Close drains the subscriptions and closes the connection.
func (t *NATSTransport) Close() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.conn == nil {
		return
	}
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil {
			logs.LogWarn.Printf("unsubscribe %q: %s", sub.Subject, err)
		}
	}
	t.subs = nil
	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
	}
	t.conn = nil
}
