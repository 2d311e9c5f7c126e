package bundle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// bucketBundles holds bundles keyed by label.
var bucketBundles = []byte("bundles")

// BoltRegistry is a file-backed Registry over a bbolt database, for bundle
// collections shared between test suites.
type BoltRegistry struct {
	db *bolt.DB
}

// OpenBoltRegistry opens (creating if needed) a bundle database at path.
func OpenBoltRegistry(path string) (*BoltRegistry, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bundle db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBundles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bundle db: %w", err)
	}
	return &BoltRegistry{db: db}, nil
}

// Put stores a bundle under label, replacing any previous entry.
func (r *BoltRegistry) Put(label string, b *Bundle) error {
	data, err := json.Marshal(bundleFile{ABI: b.ABI, Code: hex.EncodeToString(b.Code)})
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBundles).Put([]byte(label), data)
	})
}

// Resolve returns the bundle stored under label.
func (r *BoltRegistry) Resolve(label string) (*Bundle, error) {
	var raw []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketBundles).Get([]byte(label)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %q", ErrBundleNotFound, label)
	}
	return decodeBundleFile(label, raw)
}

// Labels lists all stored bundle labels.
func (r *BoltRegistry) Labels() ([]string, error) {
	var labels []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBundles).ForEach(func(k, _ []byte) error {
			labels = append(labels, string(k))
			return nil
		})
	})
	return labels, err
}

// Close closes the database.
func (r *BoltRegistry) Close() error {
	return r.db.Close()
}

// Verify interface conformance.
var _ Registry = (*BoltRegistry)(nil)
