package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/tbs/pkg/torrent/bencode"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

const (
	windowsBucket  = "windows"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// ErrCorruptRecord is returned when a stored record cannot be decoded
var ErrCorruptRecord = errors.New("corrupt window record")

// windowRecord is the stored value for one WindowKey.
type windowRecord struct {
	Size    int64  `bencode:"size"`
	ModTime int64  `bencode:"mtime"`
	Hashes  []byte `bencode:"hashes"`
}

// BboltRepository implements Repository on a bbolt database
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository opens (or creates) the cache database at dbPath
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

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

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(windowsBucket))
		if err != nil {
			return fmt.Errorf("failed to create windows bucket: %w", err)
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(strconv.Itoa(schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

func recordKey(key WindowKey) []byte {
	return []byte(key.Path + "|" + strconv.FormatInt(key.PieceLength, 10) + "|" + strconv.FormatInt(key.Phase, 10))
}

// Save stores the hashes for key, replacing any previous record
func (r *BboltRepository) Save(key WindowKey, hashes []metainfo.Hash) error {
	if key.Path == "" {
		return errors.New("window key path cannot be empty")
	}

	rec := windowRecord{
		Size:    key.Size,
		ModTime: key.ModTime,
		Hashes:  make([]byte, 0, len(hashes)*metainfo.HashSize),
	}
	for _, h := range hashes {
		rec.Hashes = append(rec.Hashes, h[:]...)
	}

	data, err := bencode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal window record: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(windowsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", windowsBucket)
		}

		if err := bucket.Put(recordKey(key), data); err != nil {
			return fmt.Errorf("failed to save window record: %w", err)
		}

		return nil
	})
}

// Find returns the stored hashes for key. A record written for a different
// size or modification time is reported as not found.
func (r *BboltRepository) Find(key WindowKey) ([]metainfo.Hash, bool, error) {
	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(windowsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", windowsBucket)
		}

		// bbolt values are only valid inside the transaction
		if v := bucket.Get(recordKey(key)); v != nil {
			data = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if data == nil {
		return nil, false, nil
	}

	var rec windowRecord
	if err := bencode.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	if rec.Size != key.Size || rec.ModTime != key.ModTime {
		return nil, false, nil
	}

	if len(rec.Hashes)%metainfo.HashSize != 0 {
		return nil, false, ErrCorruptRecord
	}

	hashes := make([]metainfo.Hash, len(rec.Hashes)/metainfo.HashSize)
	for i := range hashes {
		copy(hashes[i][:], rec.Hashes[i*metainfo.HashSize:])
	}

	return hashes, true, nil
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
