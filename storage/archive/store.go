package archive

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when the requested key is absent.
var ErrNotFound = errors.New("archive: key not found")

// Store is a generic key-value interface for the evidence archive. It allows
// the archive to use any backend (in-memory or persistent).
type Store interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	// Keys returns every stored key with the given prefix, sorted.
	Keys(prefix []byte) ([]string, error)
	Close() error
}

// MemStore is the in-memory backend used in tests and single-run deployments.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Put(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := append([]byte(nil), value...)
	s.data[string(key)] = copied
	return nil
}

func (s *MemStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemStore) Keys(prefix []byte) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for key := range s.data {
		if strings.HasPrefix(key, string(prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStore) Close() error { return nil }

// LevelDBStore is the persistent backend.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore creates or opens a LevelDB database at the specified path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Put(key []byte, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *LevelDBStore) Keys(prefix []byte) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	keys := make([]string, 0)
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
