// Package plugin installs the store, remote and echo handlers on a
// worker.
package plugin

import (
	"context"

	"github.com/dumacp/go-dataworker/internal/idb"
	"github.com/dumacp/go-dataworker/internal/worker"
)

// Store is the local storage used by the IDB handlers, an *idb.Adapter.
type Store interface {
	Configure(schema *idb.DatabaseSchema) error
	Open(ctx context.Context) error
	Save(ctx context.Context, store string, values ...interface{}) error
	Read(ctx context.Context, q idb.Query) ([]interface{}, error)
	ReadKeys(ctx context.Context, q idb.Query) ([]idb.KeyCount, error)
	Remove(ctx context.Context, q idb.Query) (int, error)
}

// Remote is the entity service used by the OData handlers, an
// *odata.Client.
type Remote interface {
	SetURI(uri string)
	SetAuthentication(user, password string)
	GetCount(ctx context.Context, query string) (int, error)
	GetList(ctx context.Context, query string) ([]interface{}, error)
}

func register(reg worker.Registrar, handlers map[string]worker.Handler) error {
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}
