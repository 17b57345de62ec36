package httpadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/GoBeromsu/My-awesome-RA/internal/config"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

type uploadedFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        string
}

type panelFake struct {
	id string

	mu         sync.Mutex
	refs       []domain.ReferencePaper
	refsErr    error
	refreshes  int
	docs       []domain.IndexedDocument
	uploaded   []uploadedFile
	citeKey    string
	uploadErr  error
	reindexErr error
	removeErr  error
	removed    []string
	paragraphs []string
	auto       bool
	state      domain.SearchState
	searchErr  error
	searchTopK int
	cleared    int
	answer     *domain.Answer
	askErr     error
}

func (p *panelFake) ID() string { return p.id }

func (p *panelFake) References(_ context.Context, refresh bool) ([]domain.ReferencePaper, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if refresh {
		p.refreshes++
	}
	return p.refs, p.refsErr
}

func (p *panelFake) Documents() []domain.IndexedDocument {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docs
}

func (p *panelFake) Upload(_ context.Context, files []domain.UploadFile, citeKey string) []domain.UploadResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.citeKey = citeKey
	results := make([]domain.UploadResult, 0, len(files))
	for _, f := range files {
		body, _ := io.ReadAll(f.Body)
		p.uploaded = append(p.uploaded, uploadedFile{Name: f.Name, ContentType: f.ContentType, Size: f.Size, Body: string(body)})
		if p.uploadErr != nil {
			results = append(results, domain.UploadResult{Filename: f.Name, Err: p.uploadErr, Error: p.uploadErr.Error()})
			continue
		}
		doc := &domain.IndexedDocument{ID: "doc-" + f.Name, Title: f.Name, CiteKey: citeKey, Status: domain.StatusIndexing}
		results = append(results, domain.UploadResult{Filename: f.Name, Document: doc})
	}
	return results
}

func (p *panelFake) Reindex(_ context.Context, documentID string) (*domain.IndexedDocument, error) {
	if p.reindexErr != nil {
		return nil, p.reindexErr
	}
	return &domain.IndexedDocument{ID: documentID, Status: domain.StatusIndexing}, nil
}

func (p *panelFake) Remove(_ context.Context, documentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeErr != nil {
		return p.removeErr
	}
	p.removed = append(p.removed, documentID)
	return nil
}

func (p *panelFake) ParagraphChanged(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paragraphs = append(p.paragraphs, text)
	return nil
}

func (p *panelFake) SetAutoMode(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auto = enabled
}

func (p *panelFake) AutoMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auto
}

func (p *panelFake) Search(_ context.Context, query string, topK int) (domain.SearchState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchTopK = topK
	if p.searchErr != nil {
		return domain.SearchState{}, p.searchErr
	}
	p.state = domain.SearchState{
		Phase:   domain.SearchSuccess,
		Query:   query,
		Results: []domain.EvidenceResult{{DocumentID: "doc-1", Text: "passage", Score: 0.9}},
		Total:   1,
	}
	return p.state, nil
}

func (p *panelFake) SearchState() domain.SearchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Phase == "" {
		return domain.IdleSearch()
	}
	return p.state
}

func (p *panelFake) ClearSearch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	p.state = domain.IdleSearch()
}

func (p *panelFake) Ask(_ context.Context, question string, _ int) (*domain.Answer, error) {
	if p.askErr != nil {
		return nil, p.askErr
	}
	if p.answer != nil {
		return p.answer, nil
	}
	return &domain.Answer{Text: "answer to " + question}, nil
}

type providerFake struct {
	mu     sync.Mutex
	panels map[string]*panelFake
	err    error
}

func newProviderFake() *providerFake {
	return &providerFake{panels: map[string]*panelFake{}}
}

// panel returns the fake behind id, mounting it when needed.
func (p *providerFake) panel(id string) *panelFake {
	p.mu.Lock()
	defer p.mu.Unlock()
	panel, ok := p.panels[id]
	if !ok {
		panel = &panelFake{id: id}
		p.panels[id] = panel
	}
	return panel
}

func (p *providerFake) Session(_ context.Context, id string) (ports.EvidencePanel, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.panel(id), nil
}

func (p *providerFake) CloseSession(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.panels[id]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "close session", fmt.Errorf("session %q", id))
	}
	delete(p.panels, id)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		OpenAPIValidation: true,
		MaxUploadBytes:    1 << 20,
	}
}

func newTestHandler(cfg config.Config, provider ports.SessionProvider, bus ports.SignalBus) http.Handler {
	if provider == nil {
		provider = newProviderFake()
	}
	return NewRouter(cfg, provider, bus).Handler()
}
