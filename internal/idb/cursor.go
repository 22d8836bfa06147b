package idb

import (
	"bytes"
	"context"

	"go.etcd.io/bbolt"
)

// KeyCount is a distinct key reached by a traversal and the number of
// records under it.
type KeyCount struct {
	Key   interface{} `json:"key" msgpack:"key"`
	Count int         `json:"count" msgpack:"count"`
}

type cursor struct {
	bucket *bbolt.Bucket
	// index entries are indexKey||primaryKey, with the primary key as value
	composite bool
	records   *bbolt.Bucket
	codec     valueCodec
}

type entry struct {
	key     []byte
	primary []byte
}

func (c *cursor) split(k, v []byte) (entry, error) {
	if !c.composite {
		return entry{key: k, primary: k}, nil
	}
	n, err := keyLen(k)
	if err != nil {
		return entry{}, err
	}
	return entry{key: k[:n], primary: v}, nil
}

// walk visits the entries in rng following dir. Entry slices are only
// valid inside fn.
func (c *cursor) walk(ctx context.Context, rng *KeyRange, dir Direction, fn func(e entry) error) error {
	er, err := rng.encode()
	if err != nil {
		return err
	}
	if dir.reverse() {
		return c.walkPrev(ctx, er, dir.unique(), fn)
	}
	return c.walkNext(ctx, er, dir.unique(), fn)
}

func (c *cursor) walkNext(ctx context.Context, er *encodedRange, unique bool, fn func(e entry) error) error {
	cur := c.bucket.Cursor()
	var k, v []byte
	if er.lower != nil {
		k, v = cur.Seek(er.lower)
	} else {
		k, v = cur.First()
	}
	var last []byte
	for ; k != nil; k, v = cur.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := c.split(k, v)
		if err != nil {
			return err
		}
		if !er.aboveLower(e.key) {
			continue
		}
		if !er.belowUpper(e.key) {
			break
		}
		if unique {
			if last != nil && bytes.Equal(last, e.key) {
				continue
			}
			last = append(last[:0], e.key...)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (c *cursor) walkPrev(ctx context.Context, er *encodedRange, unique bool, fn func(e entry) error) error {
	cur := c.bucket.Cursor()
	var k, v []byte
	if next := successor(er.upper); er.upper != nil && next != nil {
		if k, v = cur.Seek(next); k == nil {
			k, v = cur.Last()
		} else {
			k, v = cur.Prev()
		}
	} else {
		k, v = cur.Last()
	}
	var last []byte
	for ; k != nil; k, v = cur.Prev() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := c.split(k, v)
		if err != nil {
			return err
		}
		if !er.belowUpper(e.key) {
			continue
		}
		if !er.aboveLower(e.key) {
			break
		}
		if unique {
			if last != nil && bytes.Equal(last, e.key) {
				continue
			}
			last = append(last[:0], e.key...)
			if c.composite {
				// the first record of a duplicate group has the lowest primary key
				fk, fv := c.bucket.Cursor().Seek(e.key)
				if e, err = c.split(fk, fv); err != nil {
					return err
				}
			}
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// countKey counts the entries stored under the encoded key ek.
func (c *cursor) countKey(ctx context.Context, ek []byte) (int, error) {
	if !c.composite {
		if c.bucket.Get(ek) != nil {
			return 1, nil
		}
		return 0, nil
	}
	n := 0
	cur := c.bucket.Cursor()
	for k, _ := cur.Seek(ek); k != nil && bytes.HasPrefix(k, ek); k, _ = cur.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func collectValues(ctx context.Context, c *cursor, rng *KeyRange, dir Direction) ([]interface{}, error) {
	values := make([]interface{}, 0)
	err := c.walk(ctx, rng, dir, func(e entry) error {
		data := c.records.Get(e.primary)
		if data == nil {
			return nil
		}
		v, err := c.codec.decode(data)
		if err != nil {
			return err
		}
		values = append(values, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func collectKeys(ctx context.Context, c *cursor, rng *KeyRange, dir Direction) ([]interface{}, error) {
	keys := make([]interface{}, 0)
	err := c.walk(ctx, rng, dir, func(e entry) error {
		k, _, err := DecodeKey(e.key)
		if err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// collectKeyCounts visits distinct keys only, whatever the uniqueness of
// dir, counting the records under each.
func collectKeyCounts(ctx context.Context, c *cursor, rng *KeyRange, dir Direction) ([]KeyCount, error) {
	counts := make([]KeyCount, 0)
	err := c.walk(ctx, rng, dir.Unique(), func(e entry) error {
		k, _, err := DecodeKey(e.key)
		if err != nil {
			return err
		}
		n, err := c.countKey(ctx, e.key)
		if err != nil {
			return err
		}
		counts = append(counts, KeyCount{Key: k, Count: n})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func count(ctx context.Context, c *cursor, rng *KeyRange) (int, error) {
	n := 0
	err := c.walk(ctx, rng, DirectionNext, func(entry) error {
		n++
		return nil
	})
	return n, err
}

func collectPrimaryKeys(ctx context.Context, c *cursor, rng *KeyRange) ([][]byte, error) {
	pks := make([][]byte, 0)
	seen := make(map[string]bool)
	err := c.walk(ctx, rng, DirectionNext, func(e entry) error {
		if seen[string(e.primary)] {
			return nil
		}
		seen[string(e.primary)] = true
		pks = append(pks, append([]byte(nil), e.primary...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pks, nil
}
