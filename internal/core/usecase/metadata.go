package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

const defaultMetadataConcurrency = 4

// MetadataResolver recovers title/authors/year for bibliography entries that
// lack them. Lookups are best effort: a failed key is simply left absent.
type MetadataResolver struct {
	searcher    ports.MetadataSearcher
	cache       ports.MetadataCache
	metrics     ports.IndexingMetrics
	logger      *slog.Logger
	concurrency int
}

func NewMetadataResolver(
	searcher ports.MetadataSearcher,
	cache ports.MetadataCache,
	metrics ports.IndexingMetrics,
	logger *slog.Logger,
	concurrency int,
) *MetadataResolver {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = defaultMetadataConcurrency
	}
	return &MetadataResolver{
		searcher:    searcher,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

func needsMetadata(entry domain.BibliographyEntry) bool {
	return strings.TrimSpace(entry.CiteKey) != "" &&
		(entry.Title == "" || entry.Authors == "" || entry.Year == "")
}

// Resolve returns metadata keyed by cite key for the entries that need it.
func (r *MetadataResolver) Resolve(ctx context.Context, entries []domain.BibliographyEntry) map[string]domain.PaperMetadata {
	pending := make(map[string]domain.BibliographyEntry)
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !needsMetadata(entry) {
			continue
		}
		if _, dup := pending[entry.CiteKey]; dup {
			continue
		}
		pending[entry.CiteKey] = entry
		keys = append(keys, entry.CiteKey)
	}
	resolved := make(map[string]domain.PaperMetadata, len(keys))
	if len(keys) == 0 {
		return resolved
	}

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, keys)
		if err != nil {
			r.logger.Warn("metadata_cache_read_failed", "keys", len(keys), "error", err)
		}
		for key, meta := range cached {
			if _, wanted := pending[key]; !wanted {
				continue
			}
			resolved[key] = meta
			delete(pending, key)
			r.metrics.RecordMetadataLookup("cache_hit")
		}
	}
	if r.searcher == nil || len(pending) == 0 {
		return resolved
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, key := range keys {
		entry, ok := pending[key]
		if !ok {
			continue
		}
		g.Go(func() error {
			meta, err := r.searcher.Lookup(gctx, entry)
			switch {
			case domain.IsKind(err, domain.ErrDocumentNotFound):
				r.metrics.RecordMetadataLookup("miss")
				return nil
			case err != nil:
				r.metrics.RecordMetadataLookup("error")
				r.logger.Warn("metadata_lookup_failed", "cite_key", entry.CiteKey, "error", err)
				return nil
			}
			meta.CiteKey = entry.CiteKey
			r.metrics.RecordMetadataLookup("found")

			mu.Lock()
			resolved[entry.CiteKey] = meta
			mu.Unlock()

			if r.cache != nil {
				if err := r.cache.Put(gctx, meta); err != nil {
					r.logger.Warn("metadata_cache_write_failed", "cite_key", entry.CiteKey, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return resolved
}
