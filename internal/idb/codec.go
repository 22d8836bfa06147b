package idb

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// stored values carry a one byte header
const (
	valueRaw  byte = 0x00
	valueZstd byte = 0x01
)

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

type valueCodec struct {
	compress bool
}

func (c valueCodec) encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrData, err)
	}
	if !c.compress {
		return append([]byte{valueRaw}, data...), nil
	}
	return encoder.EncodeAll(data, []byte{valueZstd}), nil
}

func (c valueCodec) decode(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrData)
	}
	data := b[1:]
	switch b[0] {
	case valueRaw:
	case valueZstd:
		var err error
		if data, err = decoder.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrData, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown record header 0x%02x", ErrData, b[0])
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrData, err)
	}
	return v, nil
}

// normalize turns v into its generic JSON form so key paths can walk it.
func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrData, err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrData, err)
	}
	return out, nil
}
