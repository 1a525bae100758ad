// Package store keeps the selection history and saved index groups in a
// bbolt database.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/store/storedefs"
)

var logger = logutil.GetLogger("[store] ")

const dbTimeout = time.Second

// Bucket names.
const (
	bucketHistory = "history"
	bucketGroups  = "groups"
)

// Each entry is run once on a new database.
var initDB = map[string]func(*bolt.Tx) error{}

// DBStore is the permanent storage backend for selection sessions.
type DBStore interface {
	storedefs.Store
	Close() error
}

type dbStore struct {
	db *bolt.DB
}

// NewStore opens or creates the database at the given path.
func NewStore(path string) (DBStore, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: dbTimeout})
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

// NewStoreFromDB creates a store on an opened database.
func NewStoreFromDB(db *bolt.DB) (DBStore, error) {
	logger.Println("initializing store")
	defer logger.Println("initialized store")
	st := &dbStore{db}

	err := db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initDB {
			if err := fn(tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

func (s *dbStore) Close() error {
	return s.db.Close()
}
