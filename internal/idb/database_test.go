package idb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func testSchema(version uint64) *DatabaseSchema {
	return &DatabaseSchema{
		Name:    "music",
		Version: version,
		ObjectStores: []ObjectStoreSchema{
			{
				Name:    "songs",
				Options: ObjectStoreOptions{KeyPath: KeyPath{"id"}},
				Indices: []IndexSchema{
					{Name: "title"},
					{Name: "musicians", Options: IndexOptions{MultiEntry: true}},
				},
			},
			{
				Name:    "users",
				Options: ObjectStoreOptions{KeyPath: KeyPath{"last", "first"}},
				Indices: []IndexSchema{
					{Name: "byEmail", KeyPath: KeyPath{"contact.email"}, Options: IndexOptions{Unique: true}},
				},
			},
			{
				Name:    "counter",
				Options: ObjectStoreOptions{KeyPath: KeyPath{"id"}, AutoIncrement: true},
			},
			{
				Name:    "loose",
				Options: ObjectStoreOptions{AutoIncrement: true},
			},
		},
	}
}

func openTest(t *testing.T, schema *DatabaseSchema) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), schema.Name+".db"), schema, CreateFromSchema, OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func put(t *testing.T, db *Database, store string, values ...interface{}) {
	t.Helper()
	require.NoError(t, db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}
		for _, v := range values {
			if _, err := st.Put(v); err != nil {
				return err
			}
		}
		return nil
	}))
}

func ids(values []interface{}) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		out = append(out, v.(map[string]interface{})["id"].(float64))
	}
	return out
}

func song(id int, title string, musicians ...string) map[string]interface{} {
	v := map[string]interface{}{"id": id, "title": title}
	if len(musicians) > 0 {
		v["musicians"] = musicians
	}
	return v
}

func readIndex(t *testing.T, db *Database, index string, rng *KeyRange, dir Direction) []float64 {
	t.Helper()
	var values []interface{}
	require.NoError(t, db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		var src Source = st
		if index != "" {
			if src, err = st.Index(index); err != nil {
				return err
			}
		}
		values, err = src.Values(context.Background(), rng, dir)
		return err
	}))
	return ids(values)
}

func TestStoreOrderAndRanges(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs", song(3, "b"), song(1, "b"), song(2, "a"), song(4, "c"))

	assert.Equal(t, []float64{1, 2, 3, 4}, readIndex(t, db, "", nil, DirectionNext))
	assert.Equal(t, []float64{4, 3, 2, 1}, readIndex(t, db, "", nil, DirectionPrev))
	assert.Equal(t, []float64{2, 3}, readIndex(t, db, "", &KeyRange{Lower: 1, Upper: 3, LowerOpen: true}, DirectionNext))
	assert.Equal(t, []float64{3, 2}, readIndex(t, db, "", &KeyRange{Lower: 2, Upper: 4, UpperOpen: true}, DirectionPrev))
	assert.Equal(t, []float64{4}, readIndex(t, db, "", Only(4), DirectionPrevUnique))
	assert.Empty(t, readIndex(t, db, "", Only(9), DirectionNext))
}

func TestIndexDirections(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs", song(1, "b"), song(2, "a"), song(3, "b"), song(4, "c"))

	assert.Equal(t, []float64{2, 1, 3, 4}, readIndex(t, db, "title", nil, DirectionNext))
	assert.Equal(t, []float64{2, 1, 4}, readIndex(t, db, "title", nil, DirectionNextUnique))
	assert.Equal(t, []float64{4, 3, 1, 2}, readIndex(t, db, "title", nil, DirectionPrev))
	assert.Equal(t, []float64{4, 1, 2}, readIndex(t, db, "title", nil, DirectionPrevUnique))

	assert.Equal(t, []float64{1, 3}, readIndex(t, db, "title", Only("b"), DirectionNext))
	assert.Equal(t, []float64{3, 1}, readIndex(t, db, "title", Only("b"), DirectionPrev))
	assert.Equal(t, []float64{1, 3, 4}, readIndex(t, db, "title", LowerBound("a", true), DirectionNext))
	assert.Equal(t, []float64{2}, readIndex(t, db, "title", UpperBound("b", true), DirectionPrev))
}

func TestIndexMaintenance(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs",
		song(1, "b", "x", "y", "x"),
		song(2, "a", "y"),
		map[string]interface{}{"id": 3},
	)

	assert.Equal(t, []float64{1}, readIndex(t, db, "musicians", Only("x"), DirectionNext))
	assert.Equal(t, []float64{1, 2}, readIndex(t, db, "musicians", Only("y"), DirectionNext))
	assert.Equal(t, []float64{2, 1}, readIndex(t, db, "title", nil, DirectionNext), "records without the key are not indexed")

	put(t, db, "songs", song(1, "z"))
	assert.Empty(t, readIndex(t, db, "title", Only("b"), DirectionNext))
	assert.Empty(t, readIndex(t, db, "musicians", Only("x"), DirectionNext))
	assert.Equal(t, []float64{1}, readIndex(t, db, "title", Only("z"), DirectionNext))
}

func TestKeyCounts(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs", song(1, "b"), song(2, "a"), song(3, "b"), song(4, "c"))

	var counts []KeyCount
	require.NoError(t, db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		idx, err := st.Index("title")
		if err != nil {
			return err
		}
		counts, err = idx.KeyCounts(context.Background(), nil, DirectionPrev)
		return err
	}))
	assert.Equal(t, []KeyCount{{Key: "c", Count: 1}, {Key: "b", Count: 2}, {Key: "a", Count: 1}}, counts)
}

func TestUniqueIndexAbortsTransaction(t *testing.T) {
	db := openTest(t, testSchema(1))
	user := func(first, last, email string) map[string]interface{} {
		return map[string]interface{}{
			"first":   first,
			"last":    last,
			"contact": map[string]interface{}{"email": email},
		}
	}
	err := db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		if _, err := st.Put(user("Ada", "Lovelace", "ada@example.com")); err != nil {
			return err
		}
		_, err = st.Put(user("Alan", "Turing", "ada@example.com"))
		return err
	})
	assert.ErrorIs(t, err, ErrConstraint)

	require.NoError(t, db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		n, err := st.Count(context.Background(), nil)
		assert.Equal(t, 0, n)
		return err
	}))

	put(t, db, "users", user("Ada", "Lovelace", "ada@example.com"))
	put(t, db, "users", user("Ada", "Lovelace", "ada@example.com"))
	require.NoError(t, db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		v, err := st.Get([]interface{}{"Lovelace", "Ada"})
		assert.NotNil(t, v)
		return err
	}))
}

func TestAutoIncrement(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "counter",
		map[string]interface{}{"v": "a"},
		map[string]interface{}{"v": "b"},
		map[string]interface{}{"id": 10, "v": "c"},
		map[string]interface{}{"v": "d"},
	)
	var values []interface{}
	var keys []interface{}
	require.NoError(t, db.Update(func(tx *Tx) error {
		loose, err := tx.ObjectStore("loose")
		if err != nil {
			return err
		}
		k, err := loose.Put("first")
		keys = append(keys, k)
		if err != nil {
			return err
		}
		if k, err = loose.PutWithKey("named", "key"); err != nil {
			return err
		}
		keys = append(keys, k)

		st, err := tx.ObjectStore("counter")
		if err != nil {
			return err
		}
		values, err = st.Values(context.Background(), nil, DirectionNext)
		return err
	}))
	assert.Equal(t, []float64{1, 2, 10, 11}, ids(values))
	assert.Equal(t, []interface{}{1.0, "key"}, keys)
}

func TestMissingKeyIsDataError(t *testing.T) {
	db := openTest(t, testSchema(1))
	err := db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		_, err = st.Put(map[string]interface{}{"title": "no id"})
		return err
	})
	assert.ErrorIs(t, err, ErrData)

	err = db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		_, err = st.Put(song(1, "a"))
		return err
	})
	assert.ErrorIs(t, err, ErrReadOnly)

	err = db.View(func(tx *Tx) error {
		_, err := tx.ObjectStore("nope")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRangeThroughIndex(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs", song(1, "b"), song(2, "a"), song(3, "b"), song(4, "c"))

	var n int
	require.NoError(t, db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		idx, err := st.Index("title")
		if err != nil {
			return err
		}
		n, err = st.DeleteRange(context.Background(), idx, Only("b"))
		return err
	}))
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{2, 4}, readIndex(t, db, "", nil, DirectionNext))
	assert.Equal(t, []float64{2, 4}, readIndex(t, db, "title", nil, DirectionNext))
}

func TestVersionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.db")
	calls := make([][2]uint64, 0)
	upgrade := func(vc *VersionChange) error {
		calls = append(calls, [2]uint64{vc.OldVersion, vc.NewVersion})
		return CreateFromSchema(vc)
	}

	db, err := Open(path, testSchema(1), upgrade, OpenOptions{})
	require.NoError(t, err)
	put(t, db, "songs", song(1, "b"), song(2, "a"))
	require.NoError(t, db.Close())

	db, err = Open(path, testSchema(1), upgrade, OpenOptions{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.Equal(t, [][2]uint64{{0, 1}}, calls)

	v2 := testSchema(2)
	v2.ObjectStores[0].Indices = append(v2.ObjectStores[0].Indices, IndexSchema{Name: "byTitle", KeyPath: KeyPath{"title"}})
	db, err = Open(path, v2, upgrade, OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{0, 1}, {1, 2}}, calls)
	assert.Equal(t, []float64{2, 1}, readIndex(t, db, "byTitle", nil, DirectionNext), "new index is filled from existing records")
	require.NoError(t, db.Close())

	_, err = Open(path, testSchema(1), upgrade, OpenOptions{})
	assert.ErrorIs(t, err, ErrVersion)
}

func TestFailedUpgradeRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.db")
	boom := errors.New("boom")
	_, err := Open(path, testSchema(1), func(vc *VersionChange) error {
		if _, err := vc.CreateObjectStore("tmp", ObjectStoreOptions{}); err != nil {
			return err
		}
		return boom
	}, OpenOptions{})
	assert.ErrorIs(t, err, boom)

	db, err := Open(path, testSchema(1), CreateFromSchema, OpenOptions{})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(tx *Tx) error {
		assert.False(t, tx.HasObjectStore("tmp"))
		assert.Equal(t, []string{"counter", "loose", "songs", "users"}, tx.ObjectStoreNames())
		return nil
	}))
}

func TestIndexChangesOutsideUpgrade(t *testing.T) {
	db := openTest(t, testSchema(1))
	err := db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		_, err = st.CreateIndex("late", nil, IndexOptions{})
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompressedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.db")
	db, err := Open(path, testSchema(1), CreateFromSchema, OpenOptions{Compress: true})
	require.NoError(t, err)
	put(t, db, "songs", song(1, "compressed"))
	require.NoError(t, db.Close())

	db, err = Open(path, testSchema(1), CreateFromSchema, OpenOptions{})
	require.NoError(t, err)
	defer db.Close()
	put(t, db, "songs", song(2, "plain"))
	assert.Equal(t, []float64{1, 2}, readIndex(t, db, "", nil, DirectionNext))
}

func TestWalkStopsOnCancel(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs", song(1, "a"), song(2, "b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		_, err = st.Values(ctx, nil, DirectionNext)
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpgradeDropsStoreAndIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.db")
	db, err := Open(path, testSchema(1), CreateFromSchema, OpenOptions{})
	require.NoError(t, err)
	put(t, db, "songs", song(1, "a", "ana"), song(2, "b", "bo"))
	require.NoError(t, db.Close())

	v2 := testSchema(2)
	v2.ObjectStores = v2.ObjectStores[:3]
	v2.ObjectStores[0].Indices = v2.ObjectStores[0].Indices[:1]
	db, err = Open(path, v2, func(vc *VersionChange) error {
		if err := vc.DeleteObjectStore("loose"); err != nil {
			return err
		}
		st, err := vc.ObjectStore("songs")
		if err != nil {
			return err
		}
		if err := st.DeleteIndex("musicians"); err != nil {
			return err
		}
		assert.ErrorIs(t, vc.DeleteObjectStore("nowhere"), ErrNotFound)
		assert.ErrorIs(t, st.DeleteIndex("nowhere"), ErrNotFound)
		return CreateFromSchema(vc)
	}, OpenOptions{})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.View(func(tx *Tx) error {
		assert.Equal(t, []string{"counter", "songs", "users"}, tx.ObjectStoreNames())
		assert.False(t, tx.HasObjectStore("loose"))
		st, err := tx.ObjectStore("songs")
		require.NoError(t, err)
		assert.False(t, st.HasIndex("musicians"))
		assert.Equal(t, []string{"title"}, st.IndexNames())
		assert.Nil(t, st.entries.Bucket([]byte("musicians")))
		_, err = st.Index("musicians")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
	assert.Equal(t, []float64{1, 2}, readIndex(t, db, "title", nil, DirectionNext))

	err = db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		return st.DeleteIndex("title")
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRecordAccess(t *testing.T) {
	db := openTest(t, testSchema(1))
	put(t, db, "songs", song(1, "b"), song(2, "a"), song(3, "b"))
	ctx := context.Background()

	require.NoError(t, db.View(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		require.NoError(t, err)
		v, err := st.Get(2)
		require.NoError(t, err)
		assert.Equal(t, "a", v.(map[string]interface{})["title"])
		v, err = st.Get(9)
		require.NoError(t, err)
		assert.Nil(t, v)

		keys, err := st.Keys(ctx, nil, DirectionPrev)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{3.0, 2.0, 1.0}, keys)
		idx, err := st.Index("title")
		require.NoError(t, err)
		keys, err = idx.Keys(ctx, nil, DirectionNextUnique)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"a", "b"}, keys)

		assert.ErrorIs(t, st.Delete(1), ErrReadOnly)
		return nil
	}))

	require.NoError(t, db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		return st.Delete(1)
	}))
	assert.Equal(t, []float64{3}, readIndex(t, db, "title", Only("b"), DirectionNext))

	require.NoError(t, db.Update(func(tx *Tx) error {
		st, err := tx.ObjectStore("songs")
		if err != nil {
			return err
		}
		return st.Clear()
	}))
	assert.Empty(t, readIndex(t, db, "", nil, DirectionNext))
	assert.Empty(t, readIndex(t, db, "title", nil, DirectionNext))
}

func TestClosedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.db")
	db, err := Open(path, testSchema(1), CreateFromSchema, OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())

	err = db.View(func(*Tx) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, bbolt.ErrDatabaseNotOpen)
	assert.ErrorIs(t, db.Update(func(*Tx) error { return nil }), ErrClosed)
}
