package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

const (
	DefaultPollInterval    = 3 * time.Second
	DefaultBackoffFactor   = 1.5
	DefaultMaxPollFailures = 10
	DefaultMaxUploadBytes  = 50 << 20

	connectionTimeoutMessage = "Connection timeout"
	indexingFailedMessage    = "Indexing failed"
	pdfMediaType             = "application/pdf"
)

type IndexingConfig struct {
	PollInterval    time.Duration
	BackoffFactor   float64
	MaxPollFailures int
	MaxUploadBytes  int64
}

func (c IndexingConfig) normalize() IndexingConfig {
	out := c
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.BackoffFactor < 1 {
		out.BackoffFactor = DefaultBackoffFactor
	}
	if out.MaxPollFailures <= 0 {
		out.MaxPollFailures = DefaultMaxPollFailures
	}
	if out.MaxUploadBytes <= 0 {
		out.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return out
}

type pendingPoll struct {
	timer ports.Timer
	token uint64
}

type inFlightPoll struct {
	gen    uint64
	cancel context.CancelFunc
}

// IndexingTracker owns the set of IndexedDocument for one session and drives
// each document through not_indexed -> indexing -> indexed|error by polling
// the remote index.
//
// Every lifecycle operation assigns the document a fresh generation from a
// tracker-wide epoch. A poll result is applied only if the document still
// exists and its generation is unchanged. A listing is merged only for ids not
// removed or restarted after the listing was requested, so late responses
// never resurrect deleted or restarted documents.
type IndexingTracker struct {
	remote   ports.RemoteIndex
	clock    ports.Clock
	metrics  ports.IndexingMetrics
	logger   *slog.Logger
	cfg      IndexingConfig
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	docs       map[string]*domain.IndexedDocument
	order      []string
	epoch      uint64
	gens       map[string]uint64
	removed    map[string]uint64
	refreshing int
	pending    map[string]pendingPoll
	inFlight   map[string]inFlightPoll
	nextToken  uint64
	closed     bool
}

type TrackerOption func(*IndexingTracker)

func WithClock(clock ports.Clock) TrackerOption {
	return func(t *IndexingTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func WithIndexingMetrics(metrics ports.IndexingMetrics) TrackerOption {
	return func(t *IndexingTracker) {
		if metrics != nil {
			t.metrics = metrics
		}
	}
}

func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *IndexingTracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithChangeListener registers fn to run after every state change, outside
// the tracker lock.
func WithChangeListener(fn func()) TrackerOption {
	return func(t *IndexingTracker) {
		t.onChange = fn
	}
}

func NewIndexingTracker(remote ports.RemoteIndex, cfg IndexingConfig, opts ...TrackerOption) *IndexingTracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &IndexingTracker{
		remote:   remote,
		clock:    SystemClock(),
		metrics:  noopMetrics{},
		logger:   slog.Default(),
		cfg:      cfg.normalize(),
		ctx:      ctx,
		cancel:   cancel,
		docs:     make(map[string]*domain.IndexedDocument),
		gens:     make(map[string]uint64),
		removed:  make(map[string]uint64),
		pending:  make(map[string]pendingPoll),
		inFlight: make(map[string]inFlightPoll),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ValidateUpload rejects anything that is not a PDF within the size ceiling.
func ValidateUpload(file domain.UploadFile, maxBytes int64) error {
	name := strings.TrimSpace(file.Name)
	if name == "" {
		return &domain.ValidationError{Filename: "(unnamed)", Constraint: "file name is required"}
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return &domain.ValidationError{Filename: name, Constraint: "only PDF files are supported (.pdf extension required)"}
	}
	mediaType, _, err := mime.ParseMediaType(file.ContentType)
	if err != nil || !strings.EqualFold(mediaType, pdfMediaType) {
		return &domain.ValidationError{
			Filename:   name,
			Constraint: fmt.Sprintf("declared media type %q is not %s", file.ContentType, pdfMediaType),
		}
	}
	if file.Size > maxBytes {
		return &domain.ValidationError{
			Filename: name,
			Constraint: fmt.Sprintf("file size %.1fMB exceeds the %dMB limit",
				float64(file.Size)/float64(1<<20), maxBytes>>20),
		}
	}
	return nil
}

func (t *IndexingTracker) Documents() []domain.IndexedDocument {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.IndexedDocument, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.docs[id])
	}
	return out
}

func (t *IndexingTracker) Document(id string) (domain.IndexedDocument, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.docs[id]
	if !ok {
		return domain.IndexedDocument{}, false
	}
	return *doc, true
}

// Upload validates and submits one file. Validation failures never reach the
// network.
func (t *IndexingTracker) Upload(ctx context.Context, file domain.UploadFile, citeKeyHint string) (*domain.IndexedDocument, error) {
	if err := ValidateUpload(file, t.cfg.MaxUploadBytes); err != nil {
		t.metrics.RecordUpload("invalid")
		return nil, err
	}
	if t.isClosed() {
		return nil, domain.ErrSessionClosed
	}

	ack, err := t.remote.Upload(ctx, file, strings.TrimSpace(citeKeyHint))
	if err != nil {
		t.metrics.RecordUpload("error")
		return nil, fmt.Errorf("upload %s: %w", file.Name, err)
	}

	doc := domain.IndexedDocument{
		ID:      ack.DocumentID,
		Title:   filepath.Base(file.Name),
		CiteKey: strings.TrimSpace(citeKeyHint),
		Status:  domain.StatusIndexing,
		Message: ack.Message,
	}
	switch ack.Status {
	case domain.RemoteIndexed:
		doc.Status = domain.StatusIndexed
		doc.Message = ""
	case domain.RemoteError:
		doc.Status = domain.StatusError
		if doc.Message == "" {
			doc.Message = indexingFailedMessage
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	gen := t.restartLocked(doc.ID)
	if existing, ok := t.docs[doc.ID]; ok {
		*existing = doc
	} else {
		t.docs[doc.ID] = &doc
		t.order = append(t.order, doc.ID)
	}
	if doc.Status == domain.StatusIndexing {
		t.scheduleLocked(doc.ID, gen, t.cfg.PollInterval)
	}
	snapshot := *t.docs[doc.ID]
	t.mu.Unlock()

	t.metrics.RecordUpload("accepted")
	t.metrics.RecordTransition(snapshot.Status)
	t.logger.Info("document_uploaded", "document_id", snapshot.ID, "filename", file.Name, "status", snapshot.Status)
	t.notify()

	if snapshot.Status == domain.StatusIndexed {
		t.refreshAfterIndexed(ctx)
	}
	if snapshot.Status == domain.StatusError {
		return &snapshot, &domain.ReportedError{DocumentID: snapshot.ID, Message: snapshot.Message}
	}
	return &snapshot, nil
}

// UploadBatch uploads each file independently; one failure never aborts the
// rest of the batch.
func (t *IndexingTracker) UploadBatch(ctx context.Context, files []domain.UploadFile, citeKeyHint string) []domain.UploadResult {
	results := make([]domain.UploadResult, 0, len(files))
	for _, file := range files {
		doc, err := t.Upload(ctx, file, citeKeyHint)
		result := domain.UploadResult{Filename: file.Name, Document: doc, Err: err}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// Reindex optimistically moves an existing document to indexing, then polls
// once the remote acknowledges the request.
func (t *IndexingTracker) Reindex(ctx context.Context, id string) (*domain.IndexedDocument, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	doc, ok := t.docs[id]
	if !ok {
		t.mu.Unlock()
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "reindex", fmt.Errorf("unknown document %s", id))
	}
	gen := t.restartLocked(id)
	doc.Status = domain.StatusIndexing
	doc.Message = ""
	doc.ConsecutiveFailures = 0
	t.mu.Unlock()
	t.metrics.RecordTransition(domain.StatusIndexing)
	t.notify()

	reqErr := t.remote.Reindex(ctx, id)

	t.mu.Lock()
	cur, ok := t.docs[id]
	if t.closed || !ok || t.gens[id] != gen {
		t.mu.Unlock()
		if reqErr != nil {
			return nil, fmt.Errorf("reindex %s: %w", id, reqErr)
		}
		return nil, nil
	}
	if reqErr != nil {
		cur.Status = domain.StatusError
		cur.Message = reqErr.Error()
	} else {
		t.scheduleLocked(id, gen, t.cfg.PollInterval)
	}
	snapshot := *cur
	t.mu.Unlock()

	t.metrics.RecordTransition(snapshot.Status)
	t.notify()
	if reqErr != nil {
		t.logger.Warn("reindex_failed", "document_id", id, "error", reqErr)
		return &snapshot, fmt.Errorf("reindex %s: %w", id, reqErr)
	}
	return &snapshot, nil
}

// Remove deletes a document remotely. On success the entity and its pending
// poll are dropped; on failure the entity stays and is marked error.
func (t *IndexingTracker) Remove(ctx context.Context, id string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if _, ok := t.docs[id]; !ok {
		t.mu.Unlock()
		return domain.WrapError(domain.ErrDocumentNotFound, "remove", fmt.Errorf("unknown document %s", id))
	}
	t.mu.Unlock()

	reqErr := t.remote.Delete(ctx, id)
	if domain.IsKind(reqErr, domain.ErrDocumentNotFound) {
		// Already gone remotely; converge on the same local outcome.
		reqErr = nil
	}

	t.mu.Lock()
	cur, ok := t.docs[id]
	if t.closed || !ok {
		t.mu.Unlock()
		return reqErr
	}
	t.restartLocked(id)
	if reqErr != nil {
		cur.Status = domain.StatusError
		cur.Message = reqErr.Error()
		t.mu.Unlock()
		t.metrics.RecordTransition(domain.StatusError)
		t.notify()
		return fmt.Errorf("remove %s: %w", id, reqErr)
	}
	t.dropLocked(id)
	t.epoch++
	t.removed[id] = t.epoch
	t.mu.Unlock()

	t.logger.Info("document_removed", "document_id", id)
	t.notify()
	return nil
}

// PollOnce fetches the current status of one indexing document and applies
// it. Documents in any other state are returned as they are. Transport
// failures are converted into document state, never returned; an error the
// remote reports is applied to the document and returned as
// *domain.ReportedError.
func (t *IndexingTracker) PollOnce(ctx context.Context, id string) (domain.IndexedDocument, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.IndexedDocument{}, domain.ErrSessionClosed
	}
	doc, ok := t.docs[id]
	if !ok {
		t.mu.Unlock()
		return domain.IndexedDocument{}, domain.WrapError(domain.ErrDocumentNotFound, "poll", fmt.Errorf("unknown document %s", id))
	}
	gen := t.gens[id]
	if doc.Status != domain.StatusIndexing {
		snapshot := *doc
		t.mu.Unlock()
		return snapshot, nil
	}
	if poll, busy := t.inFlight[id]; busy && poll.gen == gen {
		snapshot := *doc
		t.mu.Unlock()
		return snapshot, nil
	}
	t.cancelPendingLocked(id)
	pollCtx, cancel := context.WithCancel(ctx)
	t.inFlight[id] = inFlightPoll{gen: gen, cancel: cancel}
	t.wg.Add(1)
	t.mu.Unlock()

	defer t.wg.Done()
	defer cancel()

	report, err := t.remote.Status(pollCtx, id)
	return t.applyPoll(ctx, id, gen, report, err)
}

func (t *IndexingTracker) applyPoll(ctx context.Context, id string, gen uint64, report domain.StatusReport, pollErr error) (domain.IndexedDocument, error) {
	t.mu.Lock()
	if poll, ok := t.inFlight[id]; ok && poll.gen == gen {
		delete(t.inFlight, id)
	}
	cur, ok := t.docs[id]
	if t.closed || !ok || t.gens[id] != gen {
		t.mu.Unlock()
		t.metrics.RecordPoll("stale")
		t.logger.Debug("poll_result_discarded", "document_id", id)
		if !ok {
			return domain.IndexedDocument{}, domain.WrapError(domain.ErrDocumentNotFound, "poll", fmt.Errorf("document %s removed", id))
		}
		return domain.IndexedDocument{}, nil
	}

	refresh := false
	outcome := string(report.Status)
	var reported *domain.ReportedError
	switch {
	case errors.As(pollErr, &reported):
		outcome = "reported_error"
		cur.Status = domain.StatusError
		cur.Message = reported.Message
		cur.ConsecutiveFailures = 0
	case pollErr != nil:
		outcome = "transport_error"
		cur.ConsecutiveFailures++
		if cur.ConsecutiveFailures >= t.cfg.MaxPollFailures {
			cur.Status = domain.StatusError
			cur.Message = connectionTimeoutMessage
			t.logger.Warn("poll_gave_up", "document_id", id, "failures", cur.ConsecutiveFailures, "error", pollErr)
			break
		}
		delay := t.backoff(cur.ConsecutiveFailures)
		t.logger.Warn("poll_failed",
			"document_id", id,
			"failures", cur.ConsecutiveFailures,
			"retry_in_ms", delay.Milliseconds(),
			"error", pollErr,
		)
		t.scheduleLocked(id, gen, delay)
	case report.Status == domain.RemoteIndexed:
		cur.Status = domain.StatusIndexed
		cur.ChunkCount = report.ChunkCount
		cur.Message = ""
		cur.ConsecutiveFailures = 0
		refresh = true
	case report.Status == domain.RemoteError:
		cur.Status = domain.StatusError
		cur.Message = report.Message
		if cur.Message == "" {
			cur.Message = indexingFailedMessage
		}
		cur.ConsecutiveFailures = 0
		reported = &domain.ReportedError{DocumentID: id, Message: cur.Message}
	default:
		cur.Status = domain.StatusIndexing
		cur.ConsecutiveFailures = 0
		t.scheduleLocked(id, gen, t.cfg.PollInterval)
	}
	snapshot := *cur
	t.mu.Unlock()

	t.metrics.RecordPoll(outcome)
	if snapshot.Status != domain.StatusIndexing {
		t.metrics.RecordTransition(snapshot.Status)
	}
	if snapshot.Status == domain.StatusIndexed {
		t.logger.Info("document_indexed", "document_id", id, "chunk_count", snapshot.ChunkCount)
	}
	t.notify()

	if refresh {
		t.refreshAfterIndexed(ctx)
	}
	if reported != nil {
		if reported.DocumentID == "" {
			reported = &domain.ReportedError{DocumentID: id, StatusCode: reported.StatusCode, Message: reported.Message}
		}
		return snapshot, reported
	}
	return snapshot, nil
}

// Refresh replaces the indexed view with the remote listing while keeping
// documents whose lifecycle is still settling locally. Documents removed or
// restarted while the listing was in flight keep their local state.
func (t *IndexingTracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrSessionClosed
	}
	since := t.epoch
	t.refreshing++
	t.mu.Unlock()

	listed, err := t.remote.List(ctx)

	t.mu.Lock()
	t.refreshing--
	if err != nil {
		t.endRefreshLocked()
		t.mu.Unlock()
		return fmt.Errorf("list documents: %w", err)
	}
	if t.closed {
		t.endRefreshLocked()
		t.mu.Unlock()
		return domain.ErrSessionClosed
	}
	changedSince := func(id string) bool {
		return t.removed[id] > since || t.gens[id] > since
	}

	seen := make(map[string]bool, len(listed))
	order := make([]string, 0, len(listed)+len(t.order))
	for _, rd := range listed {
		if rd.DocumentID == "" || seen[rd.DocumentID] {
			continue
		}
		if t.removed[rd.DocumentID] > since {
			continue
		}
		seen[rd.DocumentID] = true

		cur, ok := t.docs[rd.DocumentID]
		if ok && t.gens[rd.DocumentID] > since {
			continue
		}
		order = append(order, rd.DocumentID)
		if !ok {
			cur = &domain.IndexedDocument{ID: rd.DocumentID}
			t.docs[rd.DocumentID] = cur
		}
		if rd.Title != "" {
			cur.Title = rd.Title
		}
		if rd.CiteKey != "" {
			cur.CiteKey = rd.CiteKey
		}
		if rd.Authors != "" {
			cur.Authors = rd.Authors
		}
		if rd.Year != "" {
			cur.Year = rd.Year
		}
		if rd.IndexedAt != "" {
			cur.IndexedAt = rd.IndexedAt
		}
		if ok && (cur.Status == domain.StatusIndexing || cur.Status == domain.StatusError) {
			continue
		}
		cur.Status = domain.StatusIndexed
		cur.ChunkCount = rd.ChunkCount
		cur.Message = ""
		cur.ConsecutiveFailures = 0
	}
	for _, id := range t.order {
		if seen[id] && !changedSince(id) {
			continue
		}
		cur := t.docs[id]
		if changedSince(id) || cur.Status == domain.StatusIndexing || cur.Status == domain.StatusError {
			order = append(order, id)
			continue
		}
		t.restartLocked(id)
		delete(t.docs, id)
		delete(t.gens, id)
	}
	t.order = order
	t.endRefreshLocked()
	t.mu.Unlock()

	t.notify()
	return nil
}

// endRefreshLocked forgets removals once no listing that predates them is
// still in flight.
func (t *IndexingTracker) endRefreshLocked() {
	if t.refreshing == 0 {
		clear(t.removed)
	}
}

// Close cancels every pending poll timer and in-flight request and waits for
// running polls to return. The tracker is unusable afterwards.
func (t *IndexingTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for id := range t.pending {
		t.cancelPendingLocked(id)
	}
	for id, poll := range t.inFlight {
		poll.cancel()
		delete(t.inFlight, id)
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

// PendingPolls reports how many documents have a poll timer armed.
func (t *IndexingTracker) PendingPolls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *IndexingTracker) refreshAfterIndexed(ctx context.Context) {
	if ctx.Err() != nil {
		ctx = t.ctx
	}
	if err := t.Refresh(ctx); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		t.logger.Warn("document_list_refresh_failed", "error", err)
	}
}

func (t *IndexingTracker) backoff(failures int) time.Duration {
	return time.Duration(float64(t.cfg.PollInterval) * math.Pow(t.cfg.BackoffFactor, float64(failures)))
}

func (t *IndexingTracker) scheduleLocked(id string, gen uint64, delay time.Duration) {
	t.cancelPendingLocked(id)
	t.nextToken++
	token := t.nextToken
	timer := t.clock.AfterFunc(delay, func() {
		t.firePoll(id, gen, token)
	})
	t.pending[id] = pendingPoll{timer: timer, token: token}
}

func (t *IndexingTracker) firePoll(id string, gen, token uint64) {
	t.mu.Lock()
	p, ok := t.pending[id]
	if t.closed || !ok || p.token != token || t.gens[id] != gen {
		t.mu.Unlock()
		return
	}
	delete(t.pending, id)
	t.mu.Unlock()

	var reported *domain.ReportedError
	if _, err := t.PollOnce(t.ctx, id); err != nil && !errors.Is(err, domain.ErrSessionClosed) && !errors.As(err, &reported) {
		t.logger.Debug("scheduled_poll_skipped", "document_id", id, "error", err)
	}
}

// restartLocked starts a new lifecycle epoch for id: the pending timer and
// any in-flight poll belong to the previous epoch and are cancelled.
func (t *IndexingTracker) restartLocked(id string) uint64 {
	t.cancelPendingLocked(id)
	if poll, ok := t.inFlight[id]; ok {
		poll.cancel()
		delete(t.inFlight, id)
	}
	t.epoch++
	t.gens[id] = t.epoch
	return t.epoch
}

func (t *IndexingTracker) cancelPendingLocked(id string) {
	if p, ok := t.pending[id]; ok {
		p.timer.Stop()
		delete(t.pending, id)
	}
}

func (t *IndexingTracker) dropLocked(id string) {
	delete(t.docs, id)
	delete(t.gens, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *IndexingTracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *IndexingTracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
