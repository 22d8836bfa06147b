package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndicationDefaults(t *testing.T) {
	m := NewIndication(nil)
	assert.Equal(t, Undefined, m.Name)
	assert.NotNil(t, m.Data)
	assert.Empty(t, m.Data)
	assert.Empty(t, m.Status)

	other := NewIndication(nil)
	m.Data["k"] = 1
	assert.Empty(t, other.Data, "default data must not be shared between instances")
}

func TestNewReportDefaults(t *testing.T) {
	r := NewReport(&Message{Name: "IDB.read", ID: "42"})
	assert.Equal(t, "IDB.read", r.Name)
	assert.Equal(t, "42", r.ID)
	assert.Equal(t, StatusDebug, r.Status)
	assert.Equal(t, map[string]interface{}{}, r.Result)

	r = NewReport(&Message{Status: StatusCompleted, Result: []interface{}{1.0}})
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, []interface{}{1.0}, r.Result)
}

func TestShallowAndDeepCopy(t *testing.T) {
	src := &Message{
		Name: "IDB.save",
		Data: map[string]interface{}{
			"source": map[string]interface{}{"objectStore": "items"},
			"values": []interface{}{map[string]interface{}{"id": 1.0}},
		},
	}

	shallow := NewIndication(src)
	deep := NewIndication(src.DeepCopy())

	src.Data["source"].(map[string]interface{})["objectStore"] = "other"
	src.Data["values"].([]interface{})[0].(map[string]interface{})["id"] = 2.0

	assert.Equal(t, "other", shallow.Data["source"].(map[string]interface{})["objectStore"])
	assert.Equal(t, "items", deep.Data["source"].(map[string]interface{})["objectStore"])
	assert.Equal(t, 1.0, deep.Data["values"].([]interface{})[0].(map[string]interface{})["id"])
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.False(t, StatusInfo.Terminal())
	assert.False(t, StatusDebug.Terminal())
}

func TestErr(t *testing.T) {
	ok := NewReport(&Message{Name: "echo", Status: StatusCompleted})
	require.NoError(t, ok.Err())

	failed := NewReport(&Message{Name: "echo", Status: StatusFailed, Result: ErrorResult(errors.New("boom"))})
	err := failed.Err()
	require.Error(t, err)
	var fe *FailedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "echo failed: boom", err.Error())
}

func TestDecode(t *testing.T) {
	type source struct {
		ObjectStore string `json:"objectStore"`
		Index       string `json:"index,omitempty"`
	}
	type request struct {
		Source source   `json:"source"`
		Tags   []string `json:"tags"`
		Limit  int      `json:"limit"`
	}

	var req request
	err := Decode(map[string]interface{}{
		"source": map[string]interface{}{"objectStore": "items", "index": "byName"},
		"tags":   "a",
		"limit":  "10",
	}, &req)
	require.NoError(t, err)
	assert.Equal(t, "items", req.Source.ObjectStore)
	assert.Equal(t, "byName", req.Source.Index)
	assert.Equal(t, []string{"a"}, req.Tags)
	assert.Equal(t, 10, req.Limit)

	err = Decode(map[string]interface{}{"limit": map[string]interface{}{}}, &req)
	assert.Error(t, err)
}
