package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"grid-bot-dashboard/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// connectionsKey holds the whole list as one JSON value so a save is a single write.
var connectionsKey = []byte("connections")

type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens (or creates) a BadgerDB database at dbPath.
func NewBadgerRepository(dbPath string) (ConnectionRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging would interleave with ours; errors are still returned.
	opts.Logger = nil
	return open(opts)
}

// NewInMemoryRepository returns a repository backed by an in-memory Badger
// instance. Nothing survives Close.
func NewInMemoryRepository() (ConnectionRepository, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (ConnectionRepository, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

func (r *badgerRepository) SaveConnections(conns []models.BotConnection) error {
	if conns == nil {
		conns = []models.BotConnection{}
	}
	data, err := json.Marshal(conns)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(connectionsKey, data)
	})
}

func (r *badgerRepository) GetStoredConnections() ([]models.BotConnection, error) {
	var conns []models.BotConnection

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(connectionsKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("connections value is empty in database")
			}
			return json.Unmarshal(val, &conns)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
