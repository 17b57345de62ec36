package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

type SessionDeps struct {
	Remote       ports.RemoteIndex
	Searcher     ports.EvidenceSearcher
	Bibliography ports.BibliographySource
	Metadata     *MetadataResolver
	Generator    ports.AnswerGenerator
	Bus          ports.SignalBus
	Clock        ports.Clock
	Metrics      ports.IndexingMetrics
	Logger       *slog.Logger
}

type SessionConfig struct {
	Indexing    IndexingConfig
	Trigger     TriggerConfig
	DefaultTopK int
}

// Session is the coordinating context of one editor session. It owns the
// tracked documents, the bibliography snapshot, the reconciled reference
// list and the live search, and serializes every mutation of them.
type Session struct {
	id     string
	deps   SessionDeps
	cfg    SessionConfig
	logger *slog.Logger

	tracker *IndexingTracker
	trigger *ParagraphTrigger
	search  *SearchSession
	ask     *AskUseCase

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reconcileMu orders reconciliation runs and their notifications.
	reconcileMu sync.Mutex

	mu          sync.Mutex
	entries     []domain.BibliographyEntry
	metadata    map[string]domain.PaperMetadata
	references  []domain.ReferencePaper
	loaded      bool
	closed      bool
	unsubscribe []func()
}

func NewSession(id string, deps SessionDeps, cfg SessionConfig) (*Session, error) {
	if deps.Remote == nil || deps.Searcher == nil {
		return nil, fmt.Errorf("session %s: remote index and searcher are required", id)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger.With("session_id", id),
		ctx:      ctx,
		cancel:   cancel,
		metadata: map[string]domain.PaperMetadata{},
	}
	s.tracker = NewIndexingTracker(deps.Remote, cfg.Indexing,
		WithClock(deps.Clock),
		WithIndexingMetrics(deps.Metrics),
		WithTrackerLogger(s.logger),
		WithChangeListener(s.documentsChanged),
	)
	s.search = NewSearchSession(deps.Searcher, cfg.DefaultTopK,
		WithCiteKeys(s.citeKeys),
		WithSearchListener(s.searchChanged),
		WithSearchMetrics(deps.Metrics),
		WithSearchLogger(s.logger),
	)
	s.trigger = NewParagraphTrigger(cfg.Trigger, deps.Clock, s.paragraphAccepted)
	if deps.Generator != nil {
		s.ask = NewAskUseCase(deps.Searcher, deps.Generator)
	}

	if deps.Bus != nil {
		if err := s.subscribe(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) subscribe() error {
	subs := []struct {
		name    domain.SignalName
		handler ports.SignalHandler
	}{
		{name: domain.SignalParagraphChanged, handler: s.onParagraphSignal},
		{name: domain.SignalBibliographyChanged, handler: s.onBibliographySignal},
	}
	for _, sub := range subs {
		unsubscribe, err := s.deps.Bus.Subscribe(sub.name, sub.handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.name, err)
		}
		s.mu.Lock()
		s.unsubscribe = append(s.unsubscribe, unsubscribe)
		s.mu.Unlock()
	}
	return nil
}

// References returns the reconciled reference list. The first call, and any
// call with refresh set, rescans the bibliography, the remote document list
// and the metadata cache.
func (s *Session) References(ctx context.Context, refresh bool) ([]domain.ReferencePaper, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	loaded := s.loaded
	s.mu.Unlock()

	if refresh || !loaded {
		if err := s.tracker.Refresh(ctx); err != nil {
			s.logger.Warn("document_list_refresh_failed", "error", err)
		}
		if err := s.reloadBibliography(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.references), nil
}

func (s *Session) Documents() []domain.IndexedDocument {
	return s.tracker.Documents()
}

func (s *Session) Upload(ctx context.Context, files []domain.UploadFile, citeKey string) []domain.UploadResult {
	return s.tracker.UploadBatch(ctx, files, citeKey)
}

func (s *Session) Reindex(ctx context.Context, documentID string) (*domain.IndexedDocument, error) {
	return s.tracker.Reindex(ctx, documentID)
}

func (s *Session) Remove(ctx context.Context, documentID string) error {
	return s.tracker.Remove(ctx, documentID)
}

// ParagraphChanged feeds one paragraph signal from the editor to the trigger.
func (s *Session) ParagraphChanged(_ context.Context, text string) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	s.trigger.Observe(text)
	return nil
}

func (s *Session) SetAutoMode(enabled bool) {
	s.trigger.SetAutoMode(enabled)
}

func (s *Session) AutoMode() bool {
	return s.trigger.AutoMode()
}

func (s *Session) Search(ctx context.Context, query string, topK int) (domain.SearchState, error) {
	return s.search.Run(ctx, query, topK)
}

func (s *Session) SearchState() domain.SearchState {
	return s.search.State()
}

func (s *Session) ClearSearch() {
	s.search.Clear()
}

func (s *Session) Ask(ctx context.Context, question string, topK int) (*domain.Answer, error) {
	if s.ask == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("answer generation is not configured"))
	}
	return s.ask.Answer(ctx, question, topK)
}

// Close unmounts the session: it stops listening for signals, announces
// session_closed, cancels the live search and every poll, and waits for
// background work to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	s.publish(domain.SignalSessionClosed, domain.SessionClosed{})
	s.search.Close()
	s.trigger.Close()
	s.cancel()
	s.tracker.Close()
	s.wg.Wait()
	s.logger.Info("session_closed")
}

func (s *Session) reloadBibliography(ctx context.Context) error {
	var entries []domain.BibliographyEntry
	if s.deps.Bibliography != nil {
		var err error
		entries, err = s.deps.Bibliography.Entries(ctx)
		if err != nil {
			return fmt.Errorf("read bibliography: %w", err)
		}
	}
	metadata := map[string]domain.PaperMetadata{}
	if s.deps.Metadata != nil {
		metadata = s.deps.Metadata.Resolve(ctx, entries)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.entries = entries
	s.metadata = metadata
	s.loaded = true
	s.mu.Unlock()

	s.reconcile()
	return nil
}

// reconcile recomputes the reference list and publishes it when it changed.
func (s *Session) reconcile() {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	docs := s.tracker.Documents()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	papers := Reconcile(s.entries, docs, s.metadata)
	changed := !slices.Equal(s.references, papers)
	if changed {
		s.references = papers
	}
	s.mu.Unlock()

	if changed {
		s.publish(domain.SignalReferencesUpdated, domain.ReferencesUpdated{References: papers})
	}
}

func (s *Session) documentsChanged() {
	s.reconcile()
}

func (s *Session) searchChanged(state domain.SearchState) {
	s.publish(domain.SignalSearchStateChanged, domain.SearchStateChanged{State: state})
}

func (s *Session) citeKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		keys = append(keys, entry.CiteKey)
	}
	return keys
}

// paragraphAccepted runs for every paragraph the trigger lets through.
func (s *Session) paragraphAccepted(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish(domain.SignalShowEvidencePanel, domain.ShowEvidencePanel{Query: text})
	go func() {
		defer s.wg.Done()
		_, err := s.search.Run(s.ctx, text, s.cfg.DefaultTopK)
		if err != nil && !domain.IsKind(err, domain.ErrSearchSuperseded) && !errors.Is(err, domain.ErrSessionClosed) {
			s.logger.Warn("auto_search_failed", "error", err)
		}
	}()
}

func (s *Session) onParagraphSignal(ctx context.Context, sig domain.Signal) {
	if sig.SessionID != s.id {
		return
	}
	var payload domain.ParagraphChanged
	if err := sig.Decode(&payload); err != nil {
		s.logger.Warn("signal_decode_failed", "signal", sig.Name, "error", err)
		return
	}
	_ = s.ParagraphChanged(ctx, payload.Text)
}

func (s *Session) onBibliographySignal(_ context.Context, sig domain.Signal) {
	if sig.SessionID != "" && sig.SessionID != s.id {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.reloadBibliography(s.ctx); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			s.logger.Warn("bibliography_reload_failed", "error", err)
		}
	}()
}

func (s *Session) publish(name domain.SignalName, payload any) {
	if s.deps.Bus == nil {
		return
	}
	sig, err := domain.NewSignal(name, s.id, payload)
	if err != nil {
		s.logger.Error("signal_encode_failed", "signal", name, "error", err)
		return
	}
	if err := s.deps.Bus.Publish(s.ctx, sig); err != nil {
		s.logger.Warn("signal_publish_failed", "signal", name, "error", err)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
