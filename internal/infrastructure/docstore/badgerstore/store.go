package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/docstore"
)

const (
	keyPrefix      = "doc/"
	keySeparator   = "\x00"
	maxUpdateRetry = 5
)

// Store is an embedded DocumentStore backed by BadgerDB.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ ports.DocumentStore = (*Store)(nil)

type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the database at path; an empty path opens an in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &loggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + collection + keySeparator)
}

func documentKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

func (s *Store) Get(_ context.Context, collection, id string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(collection, id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("%s/%s", collection, id))
		}
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return out, nil
}

func (s *Store) Set(_ context.Context, collection, id string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey(collection, id), data)
	})
	if err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Create relies on the transaction's read set: of two racing creators the
// later commit conflicts and its retry sees the winner's key.
func (s *Store) Create(ctx context.Context, collection, id string, data []byte) (bool, error) {
	key := documentKey(collection, id)
	var (
		created bool
		lastErr error
	)
	for attempt := 0; attempt < maxUpdateRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		created = false
		lastErr = s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			switch {
			case err == nil:
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			created = true
			return txn.Set(key, data)
		})
		if !errors.Is(lastErr, badger.ErrConflict) {
			break
		}
	}
	if lastErr != nil {
		if errors.Is(lastErr, badger.ErrConflict) {
			return false, domain.WrapError(domain.ErrConflict, "create document", lastErr)
		}
		return false, fmt.Errorf("create document %s/%s: %w", collection, id, lastErr)
	}
	return created, nil
}

// Update runs mutate inside a read-write transaction and retries on
// optimistic-concurrency conflicts.
func (s *Store) Update(ctx context.Context, collection, id string, mutate func(current []byte) ([]byte, error)) error {
	key := documentKey(collection, id)
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			current, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			next, err := mutate(current)
			if err != nil {
				return err
			}
			return txn.Set(key, next)
		})
		if !errors.Is(lastErr, badger.ErrConflict) {
			break
		}
	}
	switch {
	case lastErr == nil:
		return nil
	case errors.Is(lastErr, badger.ErrKeyNotFound):
		return domain.WrapError(domain.ErrNotFound, "update document", fmt.Errorf("%s/%s", collection, id))
	case errors.Is(lastErr, badger.ErrConflict):
		return domain.WrapError(domain.ErrConflict, "update document", lastErr)
	default:
		return fmt.Errorf("update document %s/%s: %w", collection, id, lastErr)
	}
}

func (s *Store) Delete(_ context.Context, collection, id string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := documentKey(collection, id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return existed, nil
}

func (s *Store) Query(_ context.Context, collection string, q ports.Query) (ports.Page, error) {
	prefix := collectionPrefix(collection)
	records := make([]ports.Record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, ports.Record{
				ID:   string(item.Key()[len(prefix):]),
				Data: data,
			})
		}
		return nil
	})
	if err != nil {
		return ports.Page{}, fmt.Errorf("scan collection %s: %w", collection, err)
	}
	return docstore.Evaluate(records, q)
}

// Batch commits ops in transactions of at most ports.MaxBatchOps writes.
func (s *Store) Batch(_ context.Context, ops []ports.WriteOp) error {
	for start := 0; start < len(ops); start += ports.MaxBatchOps {
		end := start + ports.MaxBatchOps
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, op := range chunk {
				key := documentKey(op.Collection, op.ID)
				if op.Delete {
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				if err := txn.Set(key, op.Data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("commit batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}
