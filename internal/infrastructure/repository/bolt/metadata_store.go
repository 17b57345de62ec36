package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

var bucketMetadata = []byte("paper_metadata")

// MetadataStore is an embedded paper metadata cache backed by a bbolt file.
// It implements ports.MetadataCache.
type MetadataStore struct {
	db *bbolt.DB
}

func Open(path string) (*MetadataStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetadata)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create metadata bucket: %w", err)
	}
	return &MetadataStore{db: db}, nil
}

func (s *MetadataStore) Get(ctx context.Context, citeKeys []string) (map[string]domain.PaperMetadata, error) {
	out := make(map[string]domain.PaperMetadata, len(citeKeys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		for _, key := range citeKeys {
			if err := ctx.Err(); err != nil {
				return err
			}
			data := b.Get([]byte(key))
			if data == nil {
				continue
			}
			var meta domain.PaperMetadata
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			out[key] = meta
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MetadataStore) Put(_ context.Context, meta domain.PaperMetadata) error {
	if meta.CiteKey == "" {
		return domain.WrapError(domain.ErrInvalidInput, "put metadata", errors.New("cite key is required"))
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(meta.CiteKey), data)
	})
}

func (s *MetadataStore) Close() error {
	return s.db.Close()
}
