package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/fastdl/internal/ledger"
	"github.com/NamanBalaji/fastdl/internal/logger"
)

const (
	entriesBucket  = "entries"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrCorruptEntry  = errors.New("entry is corrupt")
	ErrNilEntry      = errors.New("cannot save nil entry")
	ErrEmptyPath     = errors.New("entry path cannot be empty")
)

var _ Repository = (*BboltRepository)(nil)

// BboltRepository stores ledger entries in a bbolt database keyed by absolute destination path.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return fmt.Errorf("failed to create entries bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		if err := meta.Put([]byte("schema_version"), fmt.Appendf(nil, "%d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Key returns the storage key of a destination path.
func Key(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(abs), nil
}

// Save persists an entry, replacing any previous one for the same path.
func (r *BboltRepository) Save(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}

	key, err := Key(entry.Path)
	if err != nil {
		return err
	}

	entry.Path = key
	entry.Progress = ledger.Normalize(entry.Progress)
	entry.UpdatedAt = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		if err := bucket.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}

		return nil
	})
}

// Find loads the entry of a destination path. An entry that cannot be decoded yields
// ErrCorruptEntry.
func (r *BboltRepository) Find(path string) (*Entry, error) {
	key, err := Key(path)
	if err != nil {
		return nil, err
	}

	var data []byte

	err = r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		v := bucket.Get([]byte(key))
		if v == nil {
			return ErrEntryNotFound
		}

		// v is only valid inside the transaction.
		data = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return decode(data)
}

func decode(data []byte) (*Entry, error) {
	entry := &Entry{}

	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}

	for _, s := range entry.Progress {
		if s.Start < 0 || s.End < s.Start || (entry.Size >= 0 && s.End > entry.Size) {
			return nil, fmt.Errorf("%w: span %s outside [0,%d)", ErrCorruptEntry, s, entry.Size)
		}
	}

	entry.Progress = ledger.Normalize(entry.Progress)

	return entry, nil
}

// FindAll retrieves all entries. Corrupt entries are skipped.
func (r *BboltRepository) FindAll() ([]*Entry, error) {
	var entries []*Entry

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			entry, err := decode(v)
			if err != nil {
				logger.Warnf("Skipping entry %s: %v", k, err)
				return nil
			}

			entries = append(entries, entry)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Delete removes the entry of a destination path.
func (r *BboltRepository) Delete(path string) error {
	key, err := Key(path)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		if bucket.Get([]byte(key)) == nil {
			return ErrEntryNotFound
		}

		return bucket.Delete([]byte(key))
	})
}

// Clean deletes every entry remove selects, and every corrupt entry, returning how many went.
func (r *BboltRepository) Clean(remove func(*Entry) bool) (int, error) {
	removed := 0

	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}

		var doomed [][]byte

		err := bucket.ForEach(func(k, v []byte) error {
			entry, err := decode(v)
			if err != nil || remove(entry) {
				doomed = append(doomed, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("failed to delete entry %s: %w", k, err)
			}
		}

		removed = len(doomed)

		return nil
	})

	return removed, err
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
