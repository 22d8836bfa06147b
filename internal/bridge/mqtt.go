package bridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 10 * time.Second

// MQTTTransport maps dotted subjects to slash separated topics
// ("dataworker.request" is published as "dataworker/request"). MQTT has
// no reply subjects, every report goes to the report topic.
type MQTTTransport struct {
	mux    sync.Mutex
	client mqtt.Client
	subs   map[string]mqtt.MessageHandler
	qos    byte
}

func NewMQTTTransport(url, clientID string) (*MQTTTransport, error) {
	t := &MQTTTransport{subs: make(map[string]mqtt.MessageHandler), qos: 1}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttTimeout)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logs.LogWarn.Printf("error mqtt connection: %s", err)
	})
	opts.SetOnConnectHandler(t.resubscribe)

	client := mqtt.NewClient(opts)
	tk := client.Connect()
	if !tk.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("connect %s: timeout", url)
	}
	if err := tk.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	t.client = client
	return t, nil
}

func mqttTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

func (t *MQTTTransport) resubscribe(c mqtt.Client) {
	t.mux.Lock()
	defer t.mux.Unlock()
	for topic, h := range t.subs {
		if tk := c.Subscribe(topic, t.qos, h); tk.WaitTimeout(mqttTimeout) && tk.Error() != nil {
			logs.LogWarn.Printf("resubscribe %q: %s", topic, tk.Error())
		}
	}
}

func (t *MQTTTransport) Subscribe(subject string, fn func(d *Delivery)) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.client == nil {
		return ErrNotConnected
	}
	topic := mqttTopic(subject)
	h := func(_ mqtt.Client, m mqtt.Message) {
		fn(&Delivery{Topic: m.Topic(), Data: m.Payload()})
	}
	tk := t.client.Subscribe(topic, t.qos, h)
	if !tk.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("subscribe %q: timeout", topic)
	}
	if err := tk.Error(); err != nil {
		return err
	}
	t.subs[topic] = h
	return nil
}

func (t *MQTTTransport) Publish(subject string, data []byte) error {
	t.mux.Lock()
	client := t.client
	t.mux.Unlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	tk := client.Publish(mqttTopic(subject), t.qos, false, data)
	if !tk.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish %q: timeout", subject)
	}
	return tk.Error()
}

func (t *MQTTTransport) Close() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.client == nil {
		return
	}
	t.client.Disconnect(250)
	t.client = nil
	t.subs = make(map[string]mqtt.MessageHandler)
}
