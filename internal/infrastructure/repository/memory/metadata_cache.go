package memory

import (
	"context"
	"sync"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// MetadataCache keeps paper metadata for the lifetime of the process.
type MetadataCache struct {
	mu    sync.RWMutex
	items map[string]domain.PaperMetadata
}

func NewMetadataCache() *MetadataCache {
	return &MetadataCache{items: make(map[string]domain.PaperMetadata)}
}

func (c *MetadataCache) Get(_ context.Context, citeKeys []string) (map[string]domain.PaperMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.PaperMetadata, len(citeKeys))
	for _, key := range citeKeys {
		if meta, ok := c.items[key]; ok {
			out[key] = meta
		}
	}
	return out, nil
}

func (c *MetadataCache) Put(_ context.Context, meta domain.PaperMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[meta.CiteKey] = meta
	return nil
}
