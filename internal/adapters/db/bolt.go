package db

import (
	"encoding/binary"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	bucketInfo    = []byte("info")
	bucketResults = []byte("results")

	keyIteration     = []byte("iteration")
	keySchemaVersion = []byte("schema")
)

// schemaVersion guards the record layout. A mismatch drops all stored state,
// which simply forces a full rebuild.
const schemaVersion uint64 = 1

// Bolt implements ports.Database on a bbolt file. Rule results written
// during a build are buffered and flushed in a single transaction when the
// build completes.
type Bolt struct {
	db *bolt.DB

	iteration uint64
	pending   map[domain.Key]domain.Result
}

var _ ports.Database = (*Bolt)(nil)

// OpenBolt opens (or creates) the database file at path.
func OpenBolt(path string) (*Bolt, error) {
	bdb, err := bolt.Open(filepath.Clean(path), 0o644, nil)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open build database")
	}

	b := &Bolt{db: bdb, pending: make(map[domain.Key]domain.Result)}
	if err := b.init(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) init() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		info, err := tx.CreateBucketIfNotExists(bucketInfo)
		if err != nil {
			return zerr.Wrap(err, "failed to create info bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(bucketResults); err != nil {
			return zerr.Wrap(err, "failed to create results bucket")
		}

		stored := info.Get(keySchemaVersion)
		if stored != nil && len(stored) == 8 &&
			binary.LittleEndian.Uint64(stored) == schemaVersion {
			if raw := info.Get(keyIteration); len(raw) == 8 {
				b.iteration = binary.LittleEndian.Uint64(raw)
			}
			return nil
		}

		// Unknown schema: start over.
		if err := tx.DeleteBucket(bucketResults); err != nil {
			return zerr.Wrap(err, "failed to reset results bucket")
		}
		if _, err := tx.CreateBucket(bucketResults); err != nil {
			return zerr.Wrap(err, "failed to recreate results bucket")
		}
		b.iteration = 0
		return info.Put(keySchemaVersion, u64le(schemaVersion))
	})
}

// Close closes the underlying file.
func (b *Bolt) Close() error {
	if err := b.db.Close(); err != nil {
		return zerr.Wrap(err, "failed to close build database")
	}
	return nil
}

// GetCurrentIteration returns the persisted iteration counter.
func (b *Bolt) GetCurrentIteration() (uint64, error) {
	return b.iteration, nil
}

// SetCurrentIteration stores the iteration counter; durable at the next
// flush.
func (b *Bolt) SetCurrentIteration(iteration uint64) error {
	b.iteration = iteration
	return nil
}

// LookupRuleResult returns the stored result for a key. A record that fails
// to decode is reported as absent, forcing a rebuild of that rule.
func (b *Bolt) LookupRuleResult(key domain.Key) (*domain.Result, error) {
	if result, ok := b.pending[key]; ok {
		return &result, nil
	}

	var result *domain.Result
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketResults).Get([]byte(key))
		if raw == nil {
			return nil
		}
		decoded, err := decodeResult(raw)
		if err != nil {
			// Corrupt record: treat as never built.
			return nil
		}
		result = &decoded
		return nil
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read rule result")
	}
	return result, nil
}

// SetRuleResult buffers the latest result for a key.
func (b *Bolt) SetRuleResult(key domain.Key, result domain.Result) error {
	b.pending[key] = result
	return nil
}

// BuildStarted marks the beginning of a build.
func (b *Bolt) BuildStarted() error {
	return nil
}

// BuildComplete flushes every buffered result and the iteration counter in
// one transaction.
func (b *Bolt) BuildComplete() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		results := tx.Bucket(bucketResults)
		for key, result := range b.pending {
			if err := results.Put([]byte(key), encodeResult(result)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketInfo).Put(keyIteration, u64le(b.iteration))
	})
	if err != nil {
		return zerr.Wrap(err, "failed to flush build database")
	}
	b.pending = make(map[domain.Key]domain.Result)
	return nil
}

func u64le(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}
