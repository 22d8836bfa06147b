package idb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"go.etcd.io/bbolt"
)

var (
	metaBucket = []byte("__meta__")
	versionKey = []byte("version")
)

// UpgradeHandler runs inside the version change transaction when a
// database is opened with a version above the stored one. Returning an
// error aborts the upgrade and the open.
type UpgradeHandler func(vc *VersionChange) error

// Database is an open versioned database backed by one bbolt file.
type Database struct {
	name    string
	version uint64
	db      *bbolt.DB
	codec   valueCodec
}

type OpenOptions struct {
	Timeout  time.Duration
	Compress bool
	FileMode os.FileMode
}

// Open opens or creates the database file at path at the given version.
// upgrade runs when version is above the stored version; opening with a
// lower version fails with ErrVersion.
func Open(path string, schema *DatabaseSchema, upgrade UpgradeHandler, opts OpenOptions) (*Database, error) {
	if schema == nil {
		return nil, ErrNoSchema
	}
	version := schema.Version
	if version == 0 {
		version = 1
	}
	mode := opts.FileMode
	if mode == 0 {
		mode = 0600
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(path, mode, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	d := &Database{
		name:    schema.Name,
		version: version,
		db:      db,
		codec:   valueCodec{compress: opts.Compress},
	}
	if err := db.Update(d.versionChange(schema, upgrade)); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) versionChange(schema *DatabaseSchema, upgrade UpgradeHandler) func(*bbolt.Tx) error {
	return func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		var old uint64
		if v := meta.Get(versionKey); len(v) == 8 {
			old = binary.BigEndian.Uint64(v)
		}
		switch {
		case d.version < old:
			return fmt.Errorf("%w: %d < %d", ErrVersion, d.version, old)
		case d.version == old:
			return nil
		}
		logs.LogInfo.Printf("upgrade database %q from version %d to %d", d.name, old, d.version)
		if upgrade != nil {
			vc := &VersionChange{
				Tx:         &Tx{tx: tx, db: d, writable: true, upgrade: true},
				OldVersion: old,
				NewVersion: d.version,
				Schema:     schema,
			}
			if err := upgrade(vc); err != nil {
				return fmt.Errorf("upgrade to version %d: %w", d.version, err)
			}
		}
		return meta.Put(versionKey, binary.BigEndian.AppendUint64(nil, d.version))
	}
}

func (d *Database) Name() string {
	return d.name
}

func (d *Database) Version() uint64 {
	return d.version
}

// Path of the backing file.
func (d *Database) Path() string {
	return d.db.Path()
}

func (d *Database) Close() error {
	return d.db.Close()
}

// View runs fn in a read only transaction. A closed database fails with
// ErrClosed.
func (d *Database) View(fn func(tx *Tx) error) error {
	return closed(d.db.View(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx, db: d})
	}))
}

// Update runs fn in a read write transaction. fn returning an error
// rolls back every change.
func (d *Database) Update(fn func(tx *Tx) error) error {
	return closed(d.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx, db: d, writable: true})
	}))
}

func closed(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

type Tx struct {
	tx       *bbolt.Tx
	db       *Database
	writable bool
	upgrade  bool
}

// ObjectStore returns a handle on store name, ErrNotFound if missing.
func (t *Tx) ObjectStore(name string) (*ObjectStore, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil || name == string(metaBucket) {
		return nil, fmt.Errorf("%w: object store %q", ErrNotFound, name)
	}
	return loadObjectStore(t, name, b)
}

func (t *Tx) HasObjectStore(name string) bool {
	return name != string(metaBucket) && t.tx.Bucket([]byte(name)) != nil
}

// ObjectStoreNames lists stores in key order.
func (t *Tx) ObjectStoreNames() []string {
	names := make([]string, 0)
	t.tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		if string(name) != string(metaBucket) {
			names = append(names, string(name))
		}
		return nil
	})
	return names
}

// VersionChange is the transaction given to an UpgradeHandler. It is the
// only place object stores and indexes can be created or deleted.
type VersionChange struct {
	*Tx
	OldVersion uint64
	NewVersion uint64
	Schema     *DatabaseSchema
}

func (vc *VersionChange) CreateObjectStore(name string, opts ObjectStoreOptions) (*ObjectStore, error) {
	if len(name) == 0 || name == string(metaBucket) {
		return nil, fmt.Errorf("%w: invalid object store name %q", ErrInvalidSchema, name)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	b, err := vc.tx.CreateBucket([]byte(name))
	if err != nil {
		if errors.Is(err, bbolt.ErrBucketExists) {
			return nil, fmt.Errorf("%w: object store %q already exists", ErrConstraint, name)
		}
		return nil, err
	}
	return createObjectStore(vc.Tx, name, b, opts)
}

func (vc *VersionChange) DeleteObjectStore(name string) error {
	if name == string(metaBucket) {
		return fmt.Errorf("%w: object store %q", ErrNotFound, name)
	}
	if err := vc.tx.DeleteBucket([]byte(name)); err != nil {
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("%w: object store %q", ErrNotFound, name)
		}
		return err
	}
	return nil
}

// CreateFromSchema is the default upgrade: it creates the stores and
// indexes of the schema that do not exist yet.
func CreateFromSchema(vc *VersionChange) error {
	if vc.Schema == nil {
		return nil
	}
	for _, st := range vc.Schema.ObjectStores {
		var store *ObjectStore
		var err error
		if vc.HasObjectStore(st.Name) {
			store, err = vc.ObjectStore(st.Name)
		} else {
			store, err = vc.CreateObjectStore(st.Name, st.Options)
		}
		if err != nil {
			return err
		}
		for _, idx := range st.Indices {
			if store.HasIndex(idx.Name) {
				continue
			}
			if _, err := store.CreateIndex(idx.Name, idx.Path(), idx.Options); err != nil {
				return err
			}
		}
	}
	return nil
}
