package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/devghori1264/vinreport/internal/models"
	badger "github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("not found")
)

// Index records artifact metadata by VIN (kept minimal, allows swapping implementations).
type Index interface {
	SaveArtifact(ctx context.Context, a models.ReportArtifact) error
	GetArtifact(ctx context.Context, vin string) (models.ReportArtifact, error)
	ListArtifacts(ctx context.Context) ([]models.ReportArtifact, error)
	DeleteArtifact(ctx context.Context, vin string) error
	Close() error
}

// BadgerIndex implements Index with Badger DB.
type BadgerIndex struct {
	db *badger.DB
}

// NewBadgerIndex opens (or creates) the index at path.
func NewBadgerIndex(path string) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	return openBadger(opts)
}

// NewMemoryIndex returns an index that lives only in memory.
func NewMemoryIndex() (*BadgerIndex, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerIndex, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerIndex{db: db}, nil
}

func (s *BadgerIndex) Close() error {
	return s.db.Close()
}

func artifactKey(vin string) []byte {
	return []byte("artifact:" + vin)
}

// SaveArtifact overwrites whatever was recorded for the VIN.
func (s *BadgerIndex) SaveArtifact(ctx context.Context, a models.ReportArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(artifactKey(a.VIN), data)
	})
}

// DeleteArtifact removes the entry for vin; a missing entry is not an error.
func (s *BadgerIndex) DeleteArtifact(ctx context.Context, vin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(artifactKey(vin))
	})
}

func (s *BadgerIndex) GetArtifact(ctx context.Context, vin string) (models.ReportArtifact, error) {
	var out models.ReportArtifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(vin))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return models.ReportArtifact{}, err
	}
	return out, nil
}

// ListArtifacts returns every indexed artifact in key order.
func (s *BadgerIndex) ListArtifacts(ctx context.Context) ([]models.ReportArtifact, error) {
	var out []models.ReportArtifact
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("artifact:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var a models.ReportArtifact
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &a)
			}); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}
