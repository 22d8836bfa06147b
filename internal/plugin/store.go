package plugin

import (
	"github.com/dumacp/go-dataworker/internal/idb"
	"github.com/dumacp/go-dataworker/internal/message"
	"github.com/dumacp/go-dataworker/internal/worker"
	"github.com/dumacp/go-dataworker/pkg/messages"
	"github.com/dumacp/go-logs/pkg/logs"
)

// InstallStore registers the IDB.* handlers. Every request is answered
// with one completed or one failed report.
func InstallStore(reg worker.Registrar, store Store) error {
	return register(reg, map[string]worker.Handler{
		messages.IDBSetSchema: handleSetSchema(store),
		messages.IDBSave:      handleSave(store),
		messages.IDBRead:      handleRead(store),
		messages.IDBReadKeys:  handleReadKeys(store),
		messages.IDBRemove:    handleRemove(store),
	})
}

func decodeIDB(msg *message.Message) (*messages.IDBRequest, error) {
	req := &messages.IDBRequest{}
	if err := message.Decode(msg.Data, req); err != nil {
		return nil, err
	}
	return req, nil
}

func handleSetSchema(store Store) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		if err := func() error {
			req, err := decodeIDB(msg)
			if err != nil {
				return err
			}
			schema := req.Schema
			if schema == nil {
				// data may be the schema itself
				schema = &idb.DatabaseSchema{}
				if err := message.Decode(msg.Data, schema); err != nil {
					return err
				}
				if len(schema.Name) == 0 {
					return idb.ErrNoSchema
				}
			}
			// configure before returning so later requests see the schema
			return store.Configure(schema)
		}(); err != nil {
			logs.LogWarn.Printf("%s: %s", msg.Name, err)
			r.Fail(err)
			return
		}
		go func() {
			if err := store.Open(r.Context()); err != nil {
				r.Fail(err)
				return
			}
			r.PostCompleted(nil)
		}()
	}
}

func handleSave(store Store) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeIDB(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		go func() {
			if err := store.Save(r.Context(), req.Source.ObjectStore, req.Values...); err != nil {
				r.Fail(err)
				return
			}
			r.PostCompleted(nil)
		}()
	}
}

func handleRead(store Store) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeIDB(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		go func() {
			values, err := store.Read(r.Context(), req.StoreQuery())
			if err != nil {
				r.Fail(err)
				return
			}
			r.PostCompleted(values)
		}()
	}
}

func handleReadKeys(store Store) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeIDB(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		go func() {
			counts, err := store.ReadKeys(r.Context(), req.StoreQuery())
			if err != nil {
				r.Fail(err)
				return
			}
			r.PostCompleted(counts)
		}()
	}
}

func handleRemove(store Store) worker.Handler {
	return func(r *worker.Reply, msg *message.Message) {
		req, err := decodeIDB(msg)
		if err != nil {
			r.Fail(err)
			return
		}
		go func() {
			n, err := store.Remove(r.Context(), req.StoreQuery())
			if err != nil {
				r.Fail(err)
				return
			}
			logs.LogBuild.Printf("%s: %d records removed from %q", msg.Name, n, req.Source.ObjectStore)
			r.PostCompleted(nil)
		}()
	}
}
