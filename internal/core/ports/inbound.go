package ports

import (
	"context"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// EvidencePanel is the inbound contract of one editor session.
type EvidencePanel interface {
	ID() string
	References(ctx context.Context, refresh bool) ([]domain.ReferencePaper, error)
	Documents() []domain.IndexedDocument
	Upload(ctx context.Context, files []domain.UploadFile, citeKey string) []domain.UploadResult
	Reindex(ctx context.Context, documentID string) (*domain.IndexedDocument, error)
	Remove(ctx context.Context, documentID string) error
	ParagraphChanged(ctx context.Context, text string) error
	SetAutoMode(enabled bool)
	AutoMode() bool
	Search(ctx context.Context, query string, topK int) (domain.SearchState, error)
	SearchState() domain.SearchState
	ClearSearch()
	Ask(ctx context.Context, question string, topK int) (*domain.Answer, error)
}

// SessionProvider resolves editor sessions by id.
type SessionProvider interface {
	Session(ctx context.Context, id string) (EvidencePanel, error)
	CloseSession(id string) error
}
