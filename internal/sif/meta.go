package sif

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// metaEntry is one keyed record of the metadata dictionary.
type metaEntry struct {
	key   []byte
	value []byte
}

// metaStore is a flat keyed dictionary persisted after the live block
// region. Keys are bucketed by xxhash64; entries also keep insertion order
// so the persisted record sequence is deterministic.
type metaStore struct {
	entries []*metaEntry
	buckets map[uint64][]*metaEntry
}

func newMetaStore() *metaStore {
	return &metaStore{buckets: make(map[uint64][]*metaEntry)}
}

func metaHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// get returns the first matching entry for key, or nil.
func (m *metaStore) get(key []byte) *metaEntry {
	h := metaHash(key)
	for _, e := range m.buckets[h] {
		if bytes.Equal(e.key, key) {
			return e
		}
	}
	return nil
}

// set inserts or replaces the value for key.
func (m *metaStore) set(key, value []byte) {
	if e := m.get(key); e != nil {
		e.value = append([]byte(nil), value...)
		return
	}
	e := &metaEntry{key: append([]byte(nil), key...), value: append([]byte(nil), value...)}
	h := metaHash(key)
	m.buckets[h] = append(m.buckets[h], e)
	m.entries = append(m.entries, e)
}

// remove deletes the entry for key, if present, returning whether it existed.
func (m *metaStore) remove(key []byte) bool {
	h := metaHash(key)
	bucket := m.buckets[h]
	for i, e := range bucket {
		if bytes.Equal(e.key, key) {
			m.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			for j, entry := range m.entries {
				if entry == e {
					m.entries = append(m.entries[:j], m.entries[j+1:]...)
					break
				}
			}
			return true
		}
	}
	return false
}

func (m *metaStore) keys() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = string(e.key)
	}
	return out
}

func (m *metaStore) len() int { return len(m.entries) }

// readMetaStore parses the metadata region starting at off: a sequence of
// records, each key_length(4) + key bytes + value_length(4) + value bytes,
// all lengths big-endian.
func readMetaStore(io_ *ioState, off int64, n int32) (*metaStore, error) {
	m := newMetaStore()
	cursor := off
	for i := int32(0); i < n; i++ {
		lbuf := make([]byte, 4)
		if err := io_.ReadAt(lbuf, cursor); err != nil {
			return nil, err
		}
		keyLen := getInt32BE(lbuf)
		cursor += 4

		key := make([]byte, keyLen)
		if keyLen > 0 {
			if err := io_.ReadAt(key, cursor); err != nil {
				return nil, err
			}
		}
		cursor += int64(keyLen)

		if err := io_.ReadAt(lbuf, cursor); err != nil {
			return nil, err
		}
		valLen := getInt32BE(lbuf)
		cursor += 4

		val := make([]byte, valLen)
		if valLen > 0 {
			if err := io_.ReadAt(val, cursor); err != nil {
				return nil, err
			}
		}
		cursor += int64(valLen)

		m.set(key, val)
	}
	return m, nil
}

// writeMetaStore writes every record starting at off in insertion order,
// then truncates the file at the last metadata byte + 1.
func writeMetaStore(io_ *ioState, off int64, m *metaStore) error {
	cursor := off
	for _, e := range m.entries {
		lbuf := make([]byte, 4)
		putInt32BE(lbuf, int32(len(e.key)))
		if err := io_.WriteAt(lbuf, cursor); err != nil {
			return err
		}
		cursor += 4
		if len(e.key) > 0 {
			if err := io_.WriteAt(e.key, cursor); err != nil {
				return err
			}
			cursor += int64(len(e.key))
		}

		putInt32BE(lbuf, int32(len(e.value)))
		if err := io_.WriteAt(lbuf, cursor); err != nil {
			return err
		}
		cursor += 4
		if len(e.value) > 0 {
			if err := io_.WriteAt(e.value, cursor); err != nil {
				return err
			}
			cursor += int64(len(e.value))
		}
	}
	return io_.Truncate(cursor)
}
