package idb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Keys are encoded so that bytes.Compare on two encodings orders the keys
// the way IndexedDB does: number < string < binary < array, arrays
// element by element. Encodings are self delimiting, so an index entry
// can be stored as indexKey||primaryKey and still sort by indexKey first.
const (
	tagNumber byte = 0x10
	tagString byte = 0x20
	tagBinary byte = 0x30
	tagArray  byte = 0x40

	byteEnd    byte = 0x00
	byteEscape byte = 0xff
)

// EncodeKey returns the ordered binary form of key.
func EncodeKey(key interface{}) ([]byte, error) {
	return appendKey(nil, key)
}

func appendKey(dst []byte, key interface{}) ([]byte, error) {
	switch v := key.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil key", ErrData)
	case string:
		dst = append(dst, tagString)
		return appendEscaped(dst, []byte(v)), nil
	case []byte:
		dst = append(dst, tagBinary)
		return appendEscaped(dst, v), nil
	case float64:
		return appendNumber(dst, v)
	case float32:
		return appendNumber(dst, float64(v))
	case int:
		return appendNumber(dst, float64(v))
	case int8:
		return appendNumber(dst, float64(v))
	case int16:
		return appendNumber(dst, float64(v))
	case int32:
		return appendNumber(dst, float64(v))
	case int64:
		return appendNumber(dst, float64(v))
	case uint:
		return appendNumber(dst, float64(v))
	case uint8:
		return appendNumber(dst, float64(v))
	case uint16:
		return appendNumber(dst, float64(v))
	case uint32:
		return appendNumber(dst, float64(v))
	case uint64:
		return appendNumber(dst, float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrData, err)
		}
		return appendNumber(dst, f)
	case []interface{}:
		dst = append(dst, tagArray)
		for _, e := range v {
			var err error
			if dst, err = appendKey(dst, e); err != nil {
				return nil, err
			}
		}
		return append(dst, byteEnd), nil
	}

	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		dst = append(dst, tagArray)
		for i := 0; i < rv.Len(); i++ {
			var err error
			if dst, err = appendKey(dst, rv.Index(i).Interface()); err != nil {
				return nil, err
			}
		}
		return append(dst, byteEnd), nil
	case reflect.String:
		return appendKey(dst, rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return appendNumber(dst, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return appendNumber(dst, float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return appendNumber(dst, rv.Float())
	}
	return nil, fmt.Errorf("%w: invalid key type %T", ErrData, key)
}

func appendNumber(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN is not a valid key", ErrData)
	}
	if f == 0 {
		// -0 and +0 are the same key
		f = 0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	dst = append(dst, tagNumber)
	return binary.BigEndian.AppendUint64(dst, bits), nil
}

// appendEscaped writes data with 0x00 escaped as 0x00 0xff and a
// 0x00 0x00 terminator.
func appendEscaped(dst, data []byte) []byte {
	for _, b := range data {
		if b == byteEnd {
			dst = append(dst, byteEnd, byteEscape)
			continue
		}
		dst = append(dst, b)
	}
	return append(dst, byteEnd, byteEnd)
}

// DecodeKey decodes the key at the start of b and returns it with the
// number of bytes it used.
func DecodeKey(b []byte) (interface{}, int, error) {
	if len(b) == 0 {
		return nil, 0, fmt.Errorf("%w: empty key encoding", ErrData)
	}
	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("%w: short number key", ErrData)
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), 9, nil
	case tagString:
		data, n, err := decodeEscaped(b[1:])
		if err != nil {
			return nil, 0, err
		}
		return string(data), n + 1, nil
	case tagBinary:
		data, n, err := decodeEscaped(b[1:])
		if err != nil {
			return nil, 0, err
		}
		return data, n + 1, nil
	case tagArray:
		list := make([]interface{}, 0)
		i := 1
		for {
			if i >= len(b) {
				return nil, 0, fmt.Errorf("%w: unterminated array key", ErrData)
			}
			if b[i] == byteEnd {
				return list, i + 1, nil
			}
			e, n, err := DecodeKey(b[i:])
			if err != nil {
				return nil, 0, err
			}
			list = append(list, e)
			i += n
		}
	}
	return nil, 0, fmt.Errorf("%w: unknown key tag 0x%02x", ErrData, b[0])
}

func decodeEscaped(b []byte) ([]byte, int, error) {
	data := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != byteEnd {
			data = append(data, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case byteEnd:
			return data, i + 2, nil
		case byteEscape:
			data = append(data, byteEnd)
			i++
		default:
			return nil, 0, fmt.Errorf("%w: bad escape in key", ErrData)
		}
	}
	return nil, 0, fmt.Errorf("%w: unterminated key", ErrData)
}

// keyLen returns the length of the encoded key at the start of b.
func keyLen(b []byte) (int, error) {
	_, n, err := DecodeKey(b)
	return n, err
}

// CompareKeys orders two keys, -1, 0 or 1.
func CompareKeys(a, b interface{}) (int, error) {
	ea, err := EncodeKey(a)
	if err != nil {
		return 0, err
	}
	eb, err := EncodeKey(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

// ValidKey reports whether key can be used as a record or index key.
func ValidKey(key interface{}) bool {
	_, err := EncodeKey(key)
	return err == nil
}

// successor returns the smallest byte string greater than every string
// prefixed by b, nil if none.
func successor(b []byte) []byte {
	s := append([]byte(nil), b...)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] < 0xff {
			s[i]++
			return s[:i+1]
		}
	}
	return nil
}
