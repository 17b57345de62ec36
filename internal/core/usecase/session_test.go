package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

type sessionHarness struct {
	session *Session
	remote  *remoteFake
	search  *searcherFake
	bus     *busFake
	bib     *bibliographyFake
	clock   *manualClock
}

func newSessionHarness(t *testing.T, entries ...domain.BibliographyEntry) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		remote: newRemoteFake(),
		search: &searcherFake{},
		bus:    newBusFake(),
		bib:    &bibliographyFake{entries: entries},
		clock:  &manualClock{},
	}
	s, err := NewSession("proj-1", SessionDeps{
		Remote:       h.remote,
		Searcher:     h.search,
		Bibliography: h.bib,
		Generator:    &generatorFake{},
		Bus:          h.bus,
		Clock:        h.clock,
	}, SessionConfig{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	h.session = s
	t.Cleanup(s.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func paperFor(t *testing.T, papers []domain.ReferencePaper, key string) domain.ReferencePaper {
	t.Helper()
	for _, p := range papers {
		if p.CiteKey == key {
			return p
		}
	}
	t.Fatalf("no paper for %s in %+v", key, papers)
	return domain.ReferencePaper{}
}

func TestSessionUploadMovesReferenceThroughIndexing(t *testing.T) {
	h := newSessionHarness(t, domain.BibliographyEntry{CiteKey: "Smith2020", Title: "Deep Things"})
	h.remote.statusFn = func(_ context.Context, id string) (domain.StatusReport, error) {
		return domain.StatusReport{DocumentID: id, Status: domain.RemoteIndexed, ChunkCount: 8}, nil
	}
	ctx := context.Background()

	papers, err := h.session.References(ctx, false)
	if err != nil {
		t.Fatalf("References() error = %v", err)
	}
	if p := paperFor(t, papers, "Smith2020"); p.Status != domain.StatusNotIndexed {
		t.Fatalf("expected not indexed, got %s", p.Status)
	}

	results := h.session.Upload(ctx, []domain.UploadFile{pdfFile("paper.pdf", 2<<20)}, "Smith2020")
	if results[0].Err != nil {
		t.Fatalf("Upload() error = %v", results[0].Err)
	}
	papers, _ = h.session.References(ctx, false)
	if p := paperFor(t, papers, "Smith2020"); p.Status != domain.StatusIndexing || p.DocumentID != "doc-1" {
		t.Fatalf("expected indexing immediately after upload, got %+v", p)
	}
	if len(papers) != 1 {
		t.Fatalf("uploaded document must not appear as an orphan: %+v", papers)
	}

	h.remote.setList(domain.RemoteDocument{DocumentID: "doc-1", Title: "paper.pdf", CiteKey: "Smith2020", ChunkCount: 8})
	h.clock.Advance(DefaultPollInterval)

	papers, _ = h.session.References(ctx, false)
	p := paperFor(t, papers, "Smith2020")
	if p.Status != domain.StatusIndexed || p.ChunkCount <= 0 {
		t.Fatalf("expected indexed with chunks, got %+v", p)
	}

	updates := h.bus.Named(domain.SignalReferencesUpdated)
	if len(updates) < 3 {
		t.Fatalf("expected references_updated for each transition, got %d", len(updates))
	}
	var last domain.ReferencesUpdated
	if err := updates[len(updates)-1].Decode(&last); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if last.References[0].Status != domain.StatusIndexed {
		t.Fatalf("last published list is stale: %+v", last.References)
	}
}

func TestSessionRejectedUploadLeavesReferencesUnchanged(t *testing.T) {
	h := newSessionHarness(t, domain.BibliographyEntry{CiteKey: "Smith2020"})
	ctx := context.Background()
	before, _ := h.session.References(ctx, false)
	published := len(h.bus.Named(domain.SignalReferencesUpdated))

	results := h.session.Upload(ctx, []domain.UploadFile{pdfFile("huge.pdf", 60<<20)}, "")
	var verr *domain.ValidationError
	if !errors.As(results[0].Err, &verr) || verr.Filename != "huge.pdf" {
		t.Fatalf("expected validation error for huge.pdf, got %v", results[0].Err)
	}

	after, _ := h.session.References(ctx, false)
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("references changed: %+v -> %+v", before, after)
	}
	if got := len(h.bus.Named(domain.SignalReferencesUpdated)); got != published {
		t.Fatalf("expected no references_updated, got %d new", got-published)
	}
	if h.remote.uploadCount() != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestSessionParagraphSignalShowsPanelAndSearches(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	text := "Attention mechanisms dominate sequence modelling today."

	sig, err := domain.NewSignal(domain.SignalParagraphChanged, "proj-1", domain.ParagraphChanged{Text: text})
	if err != nil {
		t.Fatalf("NewSignal() error = %v", err)
	}
	if err := h.bus.Publish(ctx, sig); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, "search success", func() bool { return h.session.SearchState().Phase == domain.SearchSuccess })
	shows := h.bus.Named(domain.SignalShowEvidencePanel)
	if len(shows) != 1 {
		t.Fatalf("expected one show_evidence_panel, got %d", len(shows))
	}
	if q := h.search.Queries(); len(q) != 1 || q[0] != text {
		t.Fatalf("unexpected queries: %v", q)
	}

	other, _ := domain.NewSignal(domain.SignalParagraphChanged, "proj-2", domain.ParagraphChanged{Text: text + " Other."})
	_ = h.bus.Publish(ctx, other)
	_ = h.session.ParagraphChanged(ctx, text)
	if got := len(h.bus.Named(domain.SignalShowEvidencePanel)); got != 1 {
		t.Fatalf("expected foreign and duplicate paragraphs ignored, got %d panels", got)
	}
}

func TestSessionBibliographySignalReloads(t *testing.T) {
	h := newSessionHarness(t, domain.BibliographyEntry{CiteKey: "A2020"})
	ctx := context.Background()
	if _, err := h.session.References(ctx, false); err != nil {
		t.Fatalf("References() error = %v", err)
	}

	h.bib.mu.Lock()
	h.bib.entries = append(h.bib.entries, domain.BibliographyEntry{CiteKey: "B2021"})
	h.bib.mu.Unlock()

	sig, _ := domain.NewSignal(domain.SignalBibliographyChanged, "proj-1", domain.BibliographyChanged{Path: "refs.bib"})
	_ = h.bus.Publish(ctx, sig)

	waitFor(t, "reloaded references", func() bool {
		papers, _ := h.session.References(ctx, false)
		return len(papers) == 2
	})
}

func TestSessionReferencesSurfaceBibliographyError(t *testing.T) {
	h := newSessionHarness(t)
	h.bib.err = errors.New("permission denied")

	if _, err := h.session.References(context.Background(), true); err == nil {
		t.Fatalf("expected bibliography error")
	}
}

func TestSessionCloseReleasesEverything(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	_ = h.session.Upload(ctx, []domain.UploadFile{pdfFile("a.pdf", 1)}, "")
	if h.clock.Armed() != 1 {
		t.Fatalf("expected a pending poll")
	}

	h.session.Close()

	if h.clock.Armed() != 0 {
		t.Fatalf("expected poll timers cancelled on close")
	}
	if h.bus.unsubs != 2 {
		t.Fatalf("expected both subscriptions released, got %d", h.bus.unsubs)
	}
	if err := h.session.ParagraphChanged(ctx, "A paragraph that is certainly long enough."); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if _, err := h.session.References(ctx, false); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	h.session.Close()

	if closed := h.bus.Named(domain.SignalSessionClosed); len(closed) != 1 || closed[0].SessionID != h.session.ID() {
		t.Fatalf("expected one session_closed signal, got %+v", closed)
	}
}

func TestSessionAsk(t *testing.T) {
	h := newSessionHarness(t)
	answer, err := h.session.Ask(context.Background(), "What is attention?", 3)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != "answer" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestSessionRegistry(t *testing.T) {
	built := 0
	registry := NewSessionRegistry(func(_ context.Context, id string) (*Session, error) {
		built++
		return NewSession(id, SessionDeps{Remote: newRemoteFake(), Searcher: &searcherFake{}, Clock: &manualClock{}}, SessionConfig{})
	})
	ctx := context.Background()

	first, err := registry.Session(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	again, _ := registry.Session(ctx, "proj-1")
	if first != again || built != 1 {
		t.Fatalf("expected the mounted session to be reused")
	}
	if _, err := registry.Session(ctx, "../etc"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid id error, got %v", err)
	}

	if err := registry.CloseSession("proj-1"); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if err := registry.CloseSession("proj-1"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, _ = registry.Session(ctx, "proj-2")
	registry.Close()
	if registry.Len() != 0 {
		t.Fatalf("expected all sessions closed")
	}
	if _, err := registry.Session(ctx, "proj-3"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed registry, got %v", err)
	}
}

type observerFake struct {
	mounted atomic.Int32
	closed  atomic.Int32
}

func (o *observerFake) SessionMounted() { o.mounted.Add(1) }
func (o *observerFake) SessionClosed()  { o.closed.Add(1) }

func TestSessionRegistryNotifiesObserver(t *testing.T) {
	observer := &observerFake{}
	registry := NewSessionRegistry(func(_ context.Context, id string) (*Session, error) {
		return NewSession(id, SessionDeps{Remote: newRemoteFake(), Searcher: &searcherFake{}, Clock: &manualClock{}}, SessionConfig{})
	}, WithSessionObserver(observer))
	ctx := context.Background()

	_, _ = registry.Session(ctx, "a")
	_, _ = registry.Session(ctx, "a")
	_, _ = registry.Session(ctx, "b")
	_ = registry.CloseSession("a")
	registry.Close()

	if observer.mounted.Load() != 2 || observer.closed.Load() != 2 {
		t.Fatalf("unexpected observer counts: mounted=%d closed=%d", observer.mounted.Load(), observer.closed.Load())
	}
}
