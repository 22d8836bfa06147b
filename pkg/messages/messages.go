// Package messages names the operations of the store and remote
// plug-ins and builds their request messages.
package messages

import (
	"github.com/dumacp/go-dataworker/internal/idb"
	"github.com/dumacp/go-dataworker/internal/message"
)

const (
	IDBSetSchema = "IDB.setSchema"
	IDBSave      = "IDB.save"
	IDBRead      = "IDB.read"
	IDBReadKeys  = "IDB.readKeys"
	IDBRemove    = "IDB.remove"
)

const (
	ODataSetURI            = "OData.setUri"
	ODataSetAuthentication = "OData.setAuthentication"
	ODataGetCount          = "OData.getCount"
	ODataGetList           = "OData.getList"
)

const Echo = "echo"

// Source designates an object store, or one of its indexes.
type Source struct {
	ObjectStore string `json:"objectStore"`
	Index       string `json:"index,omitempty"`
}

type Query struct {
	Range     *idb.KeyRange `json:"range,omitempty"`
	Direction idb.Direction `json:"direction,omitempty"`
}

// IDBRequest is the data of every IDB.* message.
type IDBRequest struct {
	Schema *idb.DatabaseSchema `json:"schema,omitempty"`
	Source Source              `json:"source"`
	Query  Query               `json:"query"`
	Values []interface{}       `json:"values,omitempty"`
}

// StoreQuery converts the request to an adapter query.
func (r *IDBRequest) StoreQuery() idb.Query {
	return idb.Query{
		ObjectStore: r.Source.ObjectStore,
		Index:       r.Source.Index,
		Range:       r.Query.Range,
		Direction:   r.Query.Direction,
	}
}

// ODataRequest is the data of every OData.* message.
type ODataRequest struct {
	URI      string `json:"uri,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Query    string `json:"query,omitempty"`
}

func idbData() map[string]interface{} {
	return map[string]interface{}{
		"schema": nil,
		"source": map[string]interface{}{
			"objectStore": message.Undefined,
			"index":       nil,
		},
		"query": map[string]interface{}{
			"range":     nil,
			"direction": string(idb.DirectionNext),
		},
		"values": nil,
	}
}

func odataData() map[string]interface{} {
	return map[string]interface{}{
		"uri":      "",
		"user":     nil,
		"password": nil,
		"query":    "",
	}
}

func indication(name string, data map[string]interface{}) *message.Message {
	return message.NewIndication(&message.Message{Name: name, Data: data})
}

func SetSchema(schema *idb.DatabaseSchema) *message.Message {
	data := idbData()
	data["schema"] = schema
	return indication(IDBSetSchema, data)
}

func Save(objectStore string, values ...interface{}) *message.Message {
	data := idbData()
	data["source"].(map[string]interface{})["objectStore"] = objectStore
	data["values"] = values
	return indication(IDBSave, data)
}

func Read(src Source, q Query) *message.Message {
	return indication(IDBRead, queryData(src, q))
}

func ReadKeys(src Source, q Query) *message.Message {
	return indication(IDBReadKeys, queryData(src, q))
}

func Remove(src Source, rng *idb.KeyRange) *message.Message {
	return indication(IDBRemove, queryData(src, Query{Range: rng}))
}

func queryData(src Source, q Query) map[string]interface{} {
	data := idbData()
	source := data["source"].(map[string]interface{})
	if len(src.ObjectStore) > 0 {
		source["objectStore"] = src.ObjectStore
	}
	if len(src.Index) > 0 {
		source["index"] = src.Index
	}
	query := data["query"].(map[string]interface{})
	if q.Range != nil {
		query["range"] = q.Range
	}
	if len(q.Direction) > 0 {
		query["direction"] = string(q.Direction)
	}
	return data
}

func SetURI(uri string) *message.Message {
	data := odataData()
	data["uri"] = uri
	return indication(ODataSetURI, data)
}

func SetAuthentication(user, password string) *message.Message {
	data := odataData()
	data["user"] = user
	data["password"] = password
	return indication(ODataSetAuthentication, data)
}

func GetCount(query string) *message.Message {
	data := odataData()
	data["query"] = query
	return indication(ODataGetCount, data)
}

func GetList(query string) *message.Message {
	data := odataData()
	data["query"] = query
	return indication(ODataGetList, data)
}

// NewEcho builds an echo request carrying data.
func NewEcho(data map[string]interface{}) *message.Message {
	return indication(Echo, data)
}
