package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec converts messages to and from their wire form.
type Codec interface {
	Name() string
	Marshal(msg *message.Message) ([]byte, error)
	Unmarshal(data []byte) (*message.Message, error)
}

// CodecByName returns the json, msgpack or proto codec. An empty name is
// json.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	case "proto", "protobuf":
		return Proto{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(msg *message.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSON) Unmarshal(data []byte) (*message.Message, error) {
	msg := &message.Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

type MsgPack struct{}

func (MsgPack) Name() string { return "msgpack" }

func (MsgPack) Marshal(msg *message.Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (MsgPack) Unmarshal(data []byte) (*message.Message, error) {
	msg := &message.Message{}
	if err := msgpack.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Proto carries the message as a google.protobuf.Struct with the json
// field names.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) Marshal(msg *message.Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func (Proto) Unmarshal(data []byte) (*message.Message, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data, st); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, err
	}
	return JSON{}.Unmarshal(raw)
}
