package idb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.etcd.io/bbolt"
)

// sub buckets of an object store bucket
var (
	storeMeta    = []byte("m")
	storeRecords = []byte("r")
	storeIndexes = []byte("i")
	optionsKey   = []byte("options")
)

const indexMetaPrefix = "index:"

type ObjectStore struct {
	tx      *Tx
	name    string
	options ObjectStoreOptions
	meta    *bbolt.Bucket
	records *bbolt.Bucket
	entries *bbolt.Bucket
	indexes []IndexSchema
}

func createObjectStore(t *Tx, name string, b *bbolt.Bucket, opts ObjectStoreOptions) (*ObjectStore, error) {
	s := &ObjectStore{tx: t, name: name, options: opts, indexes: make([]IndexSchema, 0)}
	var err error
	if s.meta, err = b.CreateBucket(storeMeta); err != nil {
		return nil, err
	}
	if s.records, err = b.CreateBucket(storeRecords); err != nil {
		return nil, err
	}
	if s.entries, err = b.CreateBucket(storeIndexes); err != nil {
		return nil, err
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	if err := s.meta.Put(optionsKey, data); err != nil {
		return nil, err
	}
	return s, nil
}

func loadObjectStore(t *Tx, name string, b *bbolt.Bucket) (*ObjectStore, error) {
	s := &ObjectStore{
		tx:      t,
		name:    name,
		meta:    b.Bucket(storeMeta),
		records: b.Bucket(storeRecords),
		entries: b.Bucket(storeIndexes),
		indexes: make([]IndexSchema, 0),
	}
	if s.meta == nil || s.records == nil || s.entries == nil {
		return nil, fmt.Errorf("%w: object store %q is corrupt", ErrData, name)
	}
	if err := json.Unmarshal(s.meta.Get(optionsKey), &s.options); err != nil {
		return nil, fmt.Errorf("%w: object store %q options: %s", ErrData, name, err)
	}
	prefix := []byte(indexMetaPrefix)
	c := s.meta.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		idx := IndexSchema{}
		if err := json.Unmarshal(v, &idx); err != nil {
			return nil, fmt.Errorf("%w: index %q: %s", ErrData, k, err)
		}
		s.indexes = append(s.indexes, idx)
	}
	return s, nil
}

func (s *ObjectStore) Name() string {
	return s.name
}

func (s *ObjectStore) Options() ObjectStoreOptions {
	return s.options
}

func (s *ObjectStore) IndexNames() []string {
	names := make([]string, 0, len(s.indexes))
	for _, idx := range s.indexes {
		names = append(names, idx.Name)
	}
	return names
}

func (s *ObjectStore) HasIndex(name string) bool {
	_, ok := s.index(name)
	return ok
}

func (s *ObjectStore) index(name string) (IndexSchema, bool) {
	for _, idx := range s.indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSchema{}, false
}

// Index returns a handle on index name, ErrNotFound if missing.
func (s *ObjectStore) Index(name string) (*Index, error) {
	idx, ok := s.index(name)
	if !ok {
		return nil, fmt.Errorf("%w: index %q in %q", ErrNotFound, name, s.name)
	}
	b := s.entries.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: index %q in %q is corrupt", ErrData, name, s.name)
	}
	return &Index{store: s, schema: idx, bucket: b}, nil
}

// CreateIndex adds an index and fills it from the existing records. Only
// valid inside a version change.
func (s *ObjectStore) CreateIndex(name string, keyPath KeyPath, opts IndexOptions) (*Index, error) {
	if !s.tx.upgrade {
		return nil, fmt.Errorf("%w: indexes are created during an upgrade", ErrInvalidState)
	}
	if len(name) == 0 {
		return nil, fmt.Errorf("%w: index name is required", ErrInvalidSchema)
	}
	if s.HasIndex(name) {
		return nil, fmt.Errorf("%w: index %q already exists in %q", ErrConstraint, name, s.name)
	}
	idx := IndexSchema{Name: name, KeyPath: keyPath, Options: opts}
	if opts.MultiEntry && idx.Path().Compound() {
		return nil, fmt.Errorf("%w: multiEntry index %q with compound keyPath", ErrInvalidSchema, name)
	}
	b, err := s.entries.CreateBucket([]byte(name))
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	if err := s.meta.Put([]byte(indexMetaPrefix+name), data); err != nil {
		return nil, err
	}

	c := s.records.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		value, err := s.tx.db.codec.decode(v)
		if err != nil {
			return nil, err
		}
		if err := addEntries(b, idx, append([]byte(nil), k...), value); err != nil {
			return nil, err
		}
	}
	s.indexes = append(s.indexes, idx)
	return &Index{store: s, schema: idx, bucket: b}, nil
}

func (s *ObjectStore) DeleteIndex(name string) error {
	if !s.tx.upgrade {
		return fmt.Errorf("%w: indexes are deleted during an upgrade", ErrInvalidState)
	}
	if !s.HasIndex(name) {
		return fmt.Errorf("%w: index %q in %q", ErrNotFound, name, s.name)
	}
	if err := s.entries.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return err
	}
	if err := s.meta.Delete([]byte(indexMetaPrefix + name)); err != nil {
		return err
	}
	indexes := s.indexes[:0]
	for _, idx := range s.indexes {
		if idx.Name != name {
			indexes = append(indexes, idx)
		}
	}
	s.indexes = indexes
	return nil
}

// Put inserts or replaces a record whose key comes from the key path or
// the key generator.
func (s *ObjectStore) Put(value interface{}) (interface{}, error) {
	return s.put(value, nil)
}

// PutWithKey stores value under an explicit key, for stores without key
// path.
func (s *ObjectStore) PutWithKey(value, key interface{}) (interface{}, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrData)
	}
	return s.put(value, key)
}

func (s *ObjectStore) put(value, key interface{}) (interface{}, error) {
	if !s.tx.writable {
		return nil, ErrReadOnly
	}
	v, err := normalize(value)
	if err != nil {
		return nil, err
	}
	inline := len(s.options.KeyPath) > 0
	if inline {
		if key != nil {
			return nil, fmt.Errorf("%w: %q uses in line keys", ErrData, s.name)
		}
		if key, err = s.inlineKey(v); err != nil {
			return nil, err
		}
	}
	if key == nil {
		if !s.options.AutoIncrement {
			return nil, fmt.Errorf("%w: no key for record in %q", ErrData, s.name)
		}
		n, err := s.records.NextSequence()
		if err != nil {
			return nil, err
		}
		key = float64(n)
		if inline {
			if err := s.options.KeyPath.Inject(v, key); err != nil {
				return nil, err
			}
		}
	}

	pk, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	decoded, _, err := DecodeKey(pk)
	if err != nil {
		return nil, err
	}
	if f, ok := decoded.(float64); ok && s.options.AutoIncrement && f >= 1 {
		if n := uint64(math.Min(math.Floor(f), 1<<53)); n > s.records.Sequence() {
			if err := s.records.SetSequence(n); err != nil {
				return nil, err
			}
		}
	}

	if old := s.records.Get(pk); old != nil {
		oldValue, err := s.tx.db.codec.decode(old)
		if err != nil {
			return nil, err
		}
		if err := s.removeEntries(pk, oldValue); err != nil {
			return nil, err
		}
	}
	for _, idx := range s.indexes {
		b := s.entries.Bucket([]byte(idx.Name))
		if b == nil {
			return nil, fmt.Errorf("%w: index %q in %q is corrupt", ErrData, idx.Name, s.name)
		}
		if err := addEntries(b, idx, pk, v); err != nil {
			return nil, err
		}
	}
	data, err := s.tx.db.codec.encode(v)
	if err != nil {
		return nil, err
	}
	if err := s.records.Put(pk, data); err != nil {
		return nil, err
	}
	return decoded, nil
}

// inlineKey reads the key at the store key path. A missing key is nil;
// a present but invalid key is an error.
func (s *ObjectStore) inlineKey(v interface{}) (interface{}, error) {
	path := s.options.KeyPath
	if !path.Compound() {
		raw, ok := lookup(v, path[0])
		if !ok {
			return nil, nil
		}
		if !ValidKey(raw) {
			return nil, fmt.Errorf("%w: invalid key at %q", ErrData, path[0])
		}
		return raw, nil
	}
	k, ok := path.Extract(v)
	if !ok {
		return nil, fmt.Errorf("%w: no valid key at %s", ErrData, path)
	}
	return k, nil
}

// Get returns the record stored under key, nil if none.
func (s *ObjectStore) Get(key interface{}) (interface{}, error) {
	pk, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	data := s.records.Get(pk)
	if data == nil {
		return nil, nil
	}
	return s.tx.db.codec.decode(data)
}

// Delete removes the record under key. A missing key is not an error.
func (s *ObjectStore) Delete(key interface{}) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	pk, err := EncodeKey(key)
	if err != nil {
		return err
	}
	return s.deleteEncoded(pk)
}

// DeleteRange removes the records reached through src, this store or one
// of its indexes, within rng. It returns how many records were removed.
func (s *ObjectStore) DeleteRange(ctx context.Context, src Source, rng *KeyRange) (int, error) {
	if !s.tx.writable {
		return 0, ErrReadOnly
	}
	pks, err := collectPrimaryKeys(ctx, src.walker(), rng)
	if err != nil {
		return 0, err
	}
	for _, pk := range pks {
		if err := s.deleteEncoded(pk); err != nil {
			return 0, err
		}
	}
	return len(pks), nil
}

// Clear removes every record and index entry, keeping the key generator.
func (s *ObjectStore) Clear() error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	pks := make([][]byte, 0)
	c := s.records.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		pks = append(pks, append([]byte(nil), k...))
	}
	for _, pk := range pks {
		if err := s.deleteEncoded(pk); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectStore) deleteEncoded(pk []byte) error {
	old := s.records.Get(pk)
	if old == nil {
		return nil
	}
	value, err := s.tx.db.codec.decode(old)
	if err != nil {
		return err
	}
	if err := s.removeEntries(pk, value); err != nil {
		return err
	}
	return s.records.Delete(pk)
}

func (s *ObjectStore) removeEntries(pk []byte, value interface{}) error {
	for _, idx := range s.indexes {
		b := s.entries.Bucket([]byte(idx.Name))
		if b == nil {
			continue
		}
		for _, ik := range indexKeys(idx, value) {
			if err := b.Delete(entryKey(ik, pk)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ObjectStore) walker() *cursor {
	return &cursor{bucket: s.records, records: s.records, codec: s.tx.db.codec}
}

func (s *ObjectStore) Values(ctx context.Context, rng *KeyRange, dir Direction) ([]interface{}, error) {
	return collectValues(ctx, s.walker(), rng, dir)
}

func (s *ObjectStore) Keys(ctx context.Context, rng *KeyRange, dir Direction) ([]interface{}, error) {
	return collectKeys(ctx, s.walker(), rng, dir)
}

func (s *ObjectStore) KeyCounts(ctx context.Context, rng *KeyRange, dir Direction) ([]KeyCount, error) {
	return collectKeyCounts(ctx, s.walker(), rng, dir)
}

func (s *ObjectStore) Count(ctx context.Context, rng *KeyRange) (int, error) {
	return count(ctx, s.walker(), rng)
}

// Index is a secondary ordering of the records of one object store.
type Index struct {
	store  *ObjectStore
	schema IndexSchema
	bucket *bbolt.Bucket
}

func (i *Index) Name() string {
	return i.schema.Name
}

func (i *Index) Schema() IndexSchema {
	return i.schema
}

func (i *Index) ObjectStore() *ObjectStore {
	return i.store
}

func (i *Index) walker() *cursor {
	return &cursor{bucket: i.bucket, composite: true, records: i.store.records, codec: i.store.tx.db.codec}
}

func (i *Index) Values(ctx context.Context, rng *KeyRange, dir Direction) ([]interface{}, error) {
	return collectValues(ctx, i.walker(), rng, dir)
}

func (i *Index) Keys(ctx context.Context, rng *KeyRange, dir Direction) ([]interface{}, error) {
	return collectKeys(ctx, i.walker(), rng, dir)
}

func (i *Index) KeyCounts(ctx context.Context, rng *KeyRange, dir Direction) ([]KeyCount, error) {
	return collectKeyCounts(ctx, i.walker(), rng, dir)
}

func (i *Index) Count(ctx context.Context, rng *KeyRange) (int, error) {
	return count(ctx, i.walker(), rng)
}

// Source is an object store or an index, the origin of a traversal.
type Source interface {
	Name() string
	Values(ctx context.Context, rng *KeyRange, dir Direction) ([]interface{}, error)
	Keys(ctx context.Context, rng *KeyRange, dir Direction) ([]interface{}, error)
	KeyCounts(ctx context.Context, rng *KeyRange, dir Direction) ([]KeyCount, error)
	Count(ctx context.Context, rng *KeyRange) (int, error)
	walker() *cursor
}

// indexKeys returns the encoded index keys of value, none when the key
// path does not yield a valid key.
func indexKeys(idx IndexSchema, value interface{}) [][]byte {
	path := idx.Path()
	if !idx.Options.MultiEntry {
		k, ok := path.Extract(value)
		if !ok {
			return nil
		}
		ik, err := EncodeKey(k)
		if err != nil {
			return nil
		}
		return [][]byte{ik}
	}
	raw, ok := lookup(value, path[0])
	if !ok {
		return nil
	}
	list, isList := raw.([]interface{})
	if !isList {
		list = []interface{}{raw}
	}
	keys := make([][]byte, 0, len(list))
	seen := make(map[string]bool)
	for _, e := range list {
		ik, err := EncodeKey(e)
		if err != nil || seen[string(ik)] {
			continue
		}
		seen[string(ik)] = true
		keys = append(keys, ik)
	}
	return keys
}

func addEntries(b *bbolt.Bucket, idx IndexSchema, pk []byte, value interface{}) error {
	for _, ik := range indexKeys(idx, value) {
		if idx.Options.Unique {
			if k, _ := b.Cursor().Seek(ik); k != nil && bytes.HasPrefix(k, ik) {
				return fmt.Errorf("%w: unique index %q already holds key", ErrConstraint, idx.Name)
			}
		}
		if err := b.Put(entryKey(ik, pk), pk); err != nil {
			return err
		}
	}
	return nil
}

func entryKey(ik, pk []byte) []byte {
	k := make([]byte, 0, len(ik)+len(pk))
	k = append(k, ik...)
	return append(k, pk...)
}
