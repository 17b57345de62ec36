package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

const DefaultTopK = 10

// SearchSession holds the single live evidence search of a session. Starting
// a search cancels the previous one, and a response is applied only if no
// newer search or clear happened since it was issued.
type SearchSession struct {
	searcher    ports.EvidenceSearcher
	metrics     ports.IndexingMetrics
	logger      *slog.Logger
	defaultTopK int
	citeKeys    func() []string
	onChange    func(domain.SearchState)

	// emitMu keeps state notifications in the order the states were set.
	emitMu sync.Mutex

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	state  domain.SearchState
	closed bool
}

type SearchOption func(*SearchSession)

// WithCiteKeys annotates results with the bibliography keys their titles match.
func WithCiteKeys(fn func() []string) SearchOption {
	return func(s *SearchSession) { s.citeKeys = fn }
}

func WithSearchListener(fn func(domain.SearchState)) SearchOption {
	return func(s *SearchSession) { s.onChange = fn }
}

func WithSearchMetrics(metrics ports.IndexingMetrics) SearchOption {
	return func(s *SearchSession) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(s *SearchSession) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSearchSession(searcher ports.EvidenceSearcher, defaultTopK int, opts ...SearchOption) *SearchSession {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	s := &SearchSession{
		searcher:    searcher,
		metrics:     noopMetrics{},
		logger:      slog.Default(),
		defaultTopK: defaultTopK,
		state:       domain.IdleSearch(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SearchSession) State() domain.SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes a search and returns the state it produced. A failed request
// is reported through the error phase, not the returned error. The returned
// error is ErrSearchSuperseded when a newer search, a clear or the caller's
// own cancellation made the result irrelevant.
func (s *SearchSession) Run(ctx context.Context, query string, topK int) (domain.SearchState, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchState{}, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.SearchState{}, domain.ErrSessionClosed
	}
	s.seq++
	seq := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.setStateLocked(domain.SearchState{Phase: domain.SearchLoading, Query: query})

	started := time.Now()
	resp, err := s.searcher.Search(runCtx, query, topK)
	elapsed := time.Since(started)

	s.mu.Lock()
	if s.closed || s.seq != seq {
		s.mu.Unlock()
		s.metrics.RecordSearch("superseded", elapsed)
		return domain.SearchState{}, domain.WrapError(domain.ErrSearchSuperseded, "search", fmt.Errorf("query %q", query))
	}
	s.cancel = nil

	if err != nil {
		if ctx.Err() != nil {
			s.metrics.RecordSearch("cancelled", elapsed)
			s.setStateLocked(domain.IdleSearch())
			return domain.SearchState{}, domain.WrapError(domain.ErrSearchSuperseded, "search", ctx.Err())
		}
		s.metrics.RecordSearch("error", elapsed)
		s.logger.Warn("evidence_search_failed", "query_len", len(query), "error", err)
		state := domain.SearchState{Phase: domain.SearchError, Query: query, Message: err.Error()}
		s.setStateLocked(state)
		return state, nil
	}

	results := resp.Results
	if s.citeKeys != nil {
		keys := s.citeKeys()
		annotated := make([]domain.EvidenceResult, len(results))
		for i, r := range results {
			r.MatchedCiteKeys = MatchCiteKeys(r.Title, keys)
			annotated[i] = r
		}
		results = annotated
	}
	total := resp.Total
	if total == 0 {
		total = len(results)
	}
	state := domain.SearchState{Phase: domain.SearchSuccess, Query: query, Results: results, Total: total}
	s.metrics.RecordSearch("success", elapsed)
	s.setStateLocked(state)
	return state, nil
}

// Clear cancels any in-flight search and resets to idle.
func (s *SearchSession) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setStateLocked(domain.IdleSearch())
}

func (s *SearchSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// setStateLocked stores state, releases s.mu and notifies the listener.
func (s *SearchSession) setStateLocked(state domain.SearchState) {
	s.state = state
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	if s.onChange != nil {
		s.onChange(state)
	}
}
