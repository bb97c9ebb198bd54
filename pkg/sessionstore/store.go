// Package sessionstore persists whole tab histories in BadgerDB so a tab
// can be restored later, in this process or another.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/entrhq/navhistory/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("sessionstore")
	if err != nil {
		debugLog.Warnf("Failed to initialize sessionstore logger: %v", err)
	}
}

// ErrNotFound is returned when no tab is saved under an ID.
var ErrNotFound = errors.New("saved tab not found")

const tabPrefix = "tab/"

// Options configures the store.
type Options struct {
	// Path is the directory for database files. Ignored when InMemory.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites flushes every save to disk before returning.
	SyncWrites bool
}

// Store is a BadgerDB-backed collection of saved tabs keyed by tab ID.
// It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func tabKey(id string) []byte {
	return []byte(tabPrefix + id)
}

// Save stores tab under its ID, replacing any earlier save.
func (s *Store) Save(ctx context.Context, tab *SavedTab) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tab.ID == "" {
		return errors.New("saved tab needs an ID")
	}
	data, err := json.Marshal(tab)
	if err != nil {
		return fmt.Errorf("encode tab %s: %w", tab.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tabKey(tab.ID), data)
	})
	if err != nil {
		return fmt.Errorf("save tab %s: %w", tab.ID, err)
	}
	debugLog.Infof("saved tab %s (%d entries, session %s)", tab.ID, len(tab.Entries), tab.SessionID)
	return nil
}

// Load reads the tab saved under id.
func (s *Store) Load(ctx context.Context, id string) (*SavedTab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tab SavedTab
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tabKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tab)
		})
	})
	if err != nil {
		return nil, err
	}
	return &tab, nil
}

// Delete removes the tab saved under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(tabKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		} else if err != nil {
			return err
		}
		return txn.Delete(tabKey(id))
	})
}

// Summary describes a saved tab without its page states.
type Summary struct {
	ID         string
	SessionID  string
	SavedAt    time.Time
	EntryCount int
	Index      int
	URL        string
}

// List summarizes every saved tab, ordered by ID.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tabPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(tabPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var tab SavedTab
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &tab)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, tab.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// badgerLogger routes BadgerDB's own messages into the component log.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { debugLog.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { debugLog.Warnf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { debugLog.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { debugLog.Debugf(format, args...) }
