package ports

import (
	"context"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// RemoteIndex issues lifecycle requests against the remote indexing service.
type RemoteIndex interface {
	Upload(ctx context.Context, file domain.UploadFile, citeKey string) (domain.UploadAck, error)
	Status(ctx context.Context, documentID string) (domain.StatusReport, error)
	Reindex(ctx context.Context, documentID string) error
	Delete(ctx context.Context, documentID string) error
	List(ctx context.Context) ([]domain.RemoteDocument, error)
}

// EvidenceSearcher runs a semantic evidence search against the remote index.
type EvidenceSearcher interface {
	Search(ctx context.Context, query string, topK int) (domain.SearchResponse, error)
}

// BibliographySource reads citation entries from one project's file tree.
type BibliographySource interface {
	Entries(ctx context.Context) ([]domain.BibliographyEntry, error)
}

// MetadataSearcher looks up bibliographic metadata for one entry.
// It returns domain.ErrDocumentNotFound when nothing matches.
type MetadataSearcher interface {
	Lookup(ctx context.Context, entry domain.BibliographyEntry) (domain.PaperMetadata, error)
}

// MetadataCache persists metadata recovered by MetadataSearcher.
type MetadataCache interface {
	Get(ctx context.Context, citeKeys []string) (map[string]domain.PaperMetadata, error)
	Put(ctx context.Context, meta domain.PaperMetadata) error
}

type SignalHandler func(ctx context.Context, sig domain.Signal)

// SignalBus delivers signals to subscribers in emission order.
// The returned func unsubscribes and is safe to call more than once.
type SignalBus interface {
	Publish(ctx context.Context, sig domain.Signal) error
	Subscribe(name domain.SignalName, handler SignalHandler) (func(), error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, results []domain.EvidenceResult) (string, error)
}

type Timer interface {
	Stop() bool
}

// Clock schedules deferred callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// IndexingMetrics receives lifecycle observations from the core.
type IndexingMetrics interface {
	RecordPoll(outcome string)
	RecordTransition(status domain.IndexStatus)
	RecordUpload(outcome string)
	RecordSearch(outcome string, duration time.Duration)
	RecordMetadataLookup(outcome string)
}
