package message

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode fills out (a pointer to a struct) from a message payload. Struct
// fields are matched by their json tag.
func Decode(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// ErrorResult is the diagnostic payload carried by failed reports.
func ErrorResult(err error) map[string]interface{} {
	if err == nil {
		return map[string]interface{}{"error": ""}
	}
	return map[string]interface{}{"error": err.Error()}
}

type FailedError struct {
	Name   string
	Result interface{}
}

func (e *FailedError) Error() string {
	if r, ok := e.Result.(map[string]interface{}); ok {
		if v, ok := r["error"]; ok {
			return fmt.Sprintf("%s failed: %v", e.Name, v)
		}
	}
	return fmt.Sprintf("%s failed: %v", e.Name, e.Result)
}

// Err returns a *FailedError when m is a failed report.
func (m *Message) Err() error {
	if m == nil || m.Status != StatusFailed {
		return nil
	}
	return &FailedError{Name: m.Name, Result: m.Result}
}
