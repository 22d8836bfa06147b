package idb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dumacp/go-dataworker/internal/metrics"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"
)

// Query selects records from an object store, or from one of its
// indexes when Index is set.
type Query struct {
	ObjectStore string    `json:"objectStore" yaml:"objectStore"`
	Index       string    `json:"index,omitempty" yaml:"index,omitempty"`
	Range       *KeyRange `json:"range,omitempty" yaml:"range,omitempty"`
	Direction   Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// Adapter keeps the configured schema and a cached connection to the
// database it describes. The connection is opened on first use and
// concurrent first uses share one open.
type Adapter struct {
	dir     string
	opts    OpenOptions
	mux     sync.Mutex
	schema  *DatabaseSchema
	upgrade UpgradeHandler
	db      *Database
	opening singleflight.Group
	fm      *fsm.FSM
}

type Option func(*Adapter)

// WithCompression stores records zstd compressed.
func WithCompression(enable bool) Option {
	return func(a *Adapter) {
		a.opts.Compress = enable
	}
}

// WithTimeout bounds the wait for the file lock on open.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.opts.Timeout = timeout
	}
}

// WithUpgradeHandler replaces the default upgrade, CreateFromSchema.
func WithUpgradeHandler(h UpgradeHandler) Option {
	return func(a *Adapter) {
		a.upgrade = h
	}
}

// NewAdapter returns an adapter keeping one database file per name in dir.
func NewAdapter(dir string, opts ...Option) *Adapter {
	a := &Adapter{dir: dir, opts: OpenOptions{Timeout: 5 * time.Second}}
	for _, opt := range opts {
		opt(a)
	}
	a.fm = a.initFSM()
	return a
}

// State is the connection state: unconfigured, configuring, ready,
// failed or closed.
func (a *Adapter) State() string {
	return a.fm.Current()
}

// Schema returns a copy of the configured schema, nil if none.
func (a *Adapter) Schema() *DatabaseSchema {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.schema.Clone()
}

// SetUpgradeHandler replaces the upgrade handler for following opens,
// nil restoring CreateFromSchema.
func (a *Adapter) SetUpgradeHandler(h UpgradeHandler) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.upgrade = h
}

// Configure validates and keeps a copy of schema, and drops the cached
// connection. The next operation opens the database it describes.
func (a *Adapter) Configure(schema *DatabaseSchema) error {
	err := func() error {
		if err := schema.Validate(); err != nil {
			return err
		}
		a.mux.Lock()
		old := a.db
		a.db = nil
		a.schema = schema.Clone()
		a.mux.Unlock()

		a.fm.Event(eConfigure)
		if old != nil {
			if err := old.Close(); err != nil {
				logs.LogWarn.Printf("close database %q: %s", old.Name(), err)
			}
		}
		return nil
	}()
	metrics.StoreOperations.WithLabelValues("setSchema", metrics.Result(err)).Inc()
	return err
}

// Open opens the configured database unless a connection is cached,
// running the upgrade when the schema version is above the stored one.
func (a *Adapter) Open(ctx context.Context) error {
	_, err := a.connection(ctx)
	metrics.StoreOperations.WithLabelValues("open", metrics.Result(err)).Inc()
	return err
}

// SetSchema configures schema and opens its database.
func (a *Adapter) SetSchema(ctx context.Context, schema *DatabaseSchema) error {
	if err := a.Configure(schema); err != nil {
		return err
	}
	return a.Open(ctx)
}

func (a *Adapter) path(schema *DatabaseSchema) string {
	return filepath.Join(a.dir, schema.Name+".db")
}

func (a *Adapter) connection(ctx context.Context) (*Database, error) {
	a.mux.Lock()
	if a.db != nil {
		db := a.db
		a.mux.Unlock()
		return db, nil
	}
	schema := a.schema
	upgrade := a.upgrade
	a.mux.Unlock()
	if schema == nil {
		return nil, ErrNoSchema
	}
	if upgrade == nil {
		upgrade = CreateFromSchema
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s@%d", schema.Name, schema.Version)
	v, err, _ := a.opening.Do(key, func() (interface{}, error) {
		a.mux.Lock()
		if a.db != nil && a.schema == schema {
			db := a.db
			a.mux.Unlock()
			return db, nil
		}
		a.mux.Unlock()

		a.fm.Event(eOpenCmd)
		db, err := Open(a.path(schema), schema, upgrade, a.opts)
		if err != nil {
			logs.LogError.Printf("open database %q: %s", schema.Name, err)
			a.fm.Event(eError)
			return nil, err
		}

		a.mux.Lock()
		defer a.mux.Unlock()
		if a.schema != schema {
			db.Close()
			return nil, errSchemaChanged
		}
		a.db = db
		a.fm.Event(eOpened)
		logs.LogInfo.Printf("database %q opened at version %d", db.Name(), db.Version())
		return db, nil
	})
	if errors.Is(err, errSchemaChanged) {
		return a.connection(ctx)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Database), nil
}

// lost drops the cached connection after bbolt reports it closed. A
// handle replaced since is ignored.
func (a *Adapter) lost(db *Database, err error) {
	if !errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return
	}
	a.mux.Lock()
	stale := a.db != db
	if !stale {
		a.db = nil
	}
	a.mux.Unlock()
	if stale {
		return
	}
	a.fm.Event(eError)
}

// Save puts every value in store within one transaction. Any failure
// rolls back the whole batch.
func (a *Adapter) Save(ctx context.Context, store string, values ...interface{}) error {
	err := func() error {
		db, err := a.connection(ctx)
		if err != nil {
			return err
		}
		err = db.Update(func(tx *Tx) error {
			st, err := tx.ObjectStore(store)
			if err != nil {
				return err
			}
			for _, v := range values {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := st.Put(v); err != nil {
					return err
				}
			}
			return nil
		})
		a.lost(db, err)
		return err
	}()
	metrics.StoreOperations.WithLabelValues("save", metrics.Result(err)).Inc()
	return err
}

// Read returns the values reached by q.
func (a *Adapter) Read(ctx context.Context, q Query) ([]interface{}, error) {
	var values []interface{}
	err := a.view(ctx, q, func(src Source, _ *ObjectStore, dir Direction) error {
		var err error
		values, err = src.Values(ctx, q.Range, dir)
		return err
	})
	metrics.StoreOperations.WithLabelValues("read", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ReadKeys returns the distinct keys reached by q with their record
// counts. next and prev are read as nextunique and prevunique.
func (a *Adapter) ReadKeys(ctx context.Context, q Query) ([]KeyCount, error) {
	var counts []KeyCount
	err := a.view(ctx, q, func(src Source, _ *ObjectStore, dir Direction) error {
		var err error
		counts, err = src.KeyCounts(ctx, q.Range, dir.Unique())
		return err
	})
	metrics.StoreOperations.WithLabelValues("readKeys", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Count returns how many records q reaches.
func (a *Adapter) Count(ctx context.Context, q Query) (int, error) {
	var n int
	err := a.view(ctx, q, func(src Source, _ *ObjectStore, _ Direction) error {
		var err error
		n, err = src.Count(ctx, q.Range)
		return err
	})
	metrics.StoreOperations.WithLabelValues("count", metrics.Result(err)).Inc()
	return n, err
}

// Remove deletes the records reached by q and returns how many.
func (a *Adapter) Remove(ctx context.Context, q Query) (int, error) {
	var n int
	err := func() error {
		db, err := a.connection(ctx)
		if err != nil {
			return err
		}
		err = db.Update(func(tx *Tx) error {
			src, st, _, err := source(tx, q)
			if err != nil {
				return err
			}
			n, err = st.DeleteRange(ctx, src, q.Range)
			return err
		})
		a.lost(db, err)
		return err
	}()
	metrics.StoreOperations.WithLabelValues("remove", metrics.Result(err)).Inc()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Adapter) view(ctx context.Context, q Query, fn func(src Source, st *ObjectStore, dir Direction) error) error {
	db, err := a.connection(ctx)
	if err != nil {
		return err
	}
	err = db.View(func(tx *Tx) error {
		src, st, dir, err := source(tx, q)
		if err != nil {
			return err
		}
		return fn(src, st, dir)
	})
	a.lost(db, err)
	return err
}

func source(tx *Tx, q Query) (Source, *ObjectStore, Direction, error) {
	dir, err := ParseDirection(string(q.Direction))
	if err != nil {
		return nil, nil, "", err
	}
	st, err := tx.ObjectStore(q.ObjectStore)
	if err != nil {
		return nil, nil, "", err
	}
	if len(q.Index) == 0 {
		return st, st, dir, nil
	}
	idx, err := st.Index(q.Index)
	if err != nil {
		return nil, nil, "", err
	}
	return idx, st, dir, nil
}

// Close drops the cached connection. The schema is kept and the next
// operation reopens.
func (a *Adapter) Close() error {
	a.mux.Lock()
	db := a.db
	a.db = nil
	a.mux.Unlock()
	if db == nil {
		return nil
	}
	a.fm.Event(eClosed)
	return db.Close()
}
