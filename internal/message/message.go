package message

import (
	"fmt"
)

// Undefined is the name carried by messages built without one.
const Undefined = "undefined"

type Status string

const (
	// StatusCompleted worker has completed its task
	StatusCompleted Status = "completed"
	// StatusFailed worker stops its task with failed status
	StatusFailed Status = "failed"
	// StatusSuccess remote call returned a result
	StatusSuccess Status = "success"
	// StatusInfo information for message listener
	StatusInfo Status = "info"
	// StatusDebug for debugging
	StatusDebug Status = "debug"
)

// Terminal reports whether a report with this status answers a request.
// info and debug reports are side channel traffic.
func (s Status) Terminal() bool {
	return s != StatusInfo && s != StatusDebug && s != ""
}

// Message is the unit exchanged between host and worker. Indications
// (host to worker) use Data, reports (worker to host) use Status and Result.
type Message struct {
	Name   string                 `json:"name" msgpack:"name"`
	ID     string                 `json:"id,omitempty" msgpack:"id,omitempty"`
	Status Status                 `json:"status,omitempty" msgpack:"status,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
	Result interface{}            `json:"result,omitempty" msgpack:"result,omitempty"`
}

// NewIndication builds a task message for the worker. Fields present in
// source are copied (shallow) over the defaults.
func NewIndication(source *Message) *Message {
	m := &Message{
		Name: Undefined,
		Data: make(map[string]interface{}),
	}
	m.Extend(source)
	return m
}

// NewReport builds a message posted by the worker.
func NewReport(source *Message) *Message {
	m := &Message{
		Name:   Undefined,
		Status: StatusDebug,
		Result: make(map[string]interface{}),
	}
	m.Extend(source)
	return m
}

// Extend applies the non zero fields of source to m.
func (m *Message) Extend(source *Message) {
	if source == nil {
		return
	}
	if len(source.Name) > 0 {
		m.Name = source.Name
	}
	if len(source.ID) > 0 {
		m.ID = source.ID
	}
	if len(source.Status) > 0 {
		m.Status = source.Status
	}
	if source.Data != nil {
		m.Data = source.Data
	}
	if source.Result != nil {
		m.Result = source.Result
	}
}

// DeepCopy returns a copy of m that shares no maps or slices with it.
func (m *Message) DeepCopy() *Message {
	if m == nil {
		return nil
	}
	c := &Message{
		Name:   m.Name,
		ID:     m.ID,
		Status: m.Status,
		Result: deepCopy(m.Result),
	}
	if m.Data != nil {
		c.Data = deepCopy(m.Data).(map[string]interface{})
	}
	return c
}

func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	if len(m.Status) > 0 {
		return fmt.Sprintf("%s[%s] (%s)", m.Name, m.ID, m.Status)
	}
	return fmt.Sprintf("%s[%s]", m.Name, m.ID)
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		c := make(map[string]interface{}, len(t))
		for k, e := range t {
			c[k] = deepCopy(e)
		}
		return c
	case []interface{}:
		c := make([]interface{}, len(t))
		for i, e := range t {
			c[i] = deepCopy(e)
		}
		return c
	case []map[string]interface{}:
		c := make([]map[string]interface{}, len(t))
		for i, e := range t {
			c[i] = deepCopy(e).(map[string]interface{})
		}
		return c
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
