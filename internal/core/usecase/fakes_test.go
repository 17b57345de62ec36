package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

// manualClock runs timer callbacks synchronously from Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
	delays []time.Duration
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing due timers in schedule order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextLocked()
		if next == nil || next.at > target {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// FireNext jumps to the earliest armed timer and fires it.
func (c *manualClock) FireNext() bool {
	c.mu.Lock()
	next := c.nextLocked()
	if next == nil {
		c.mu.Unlock()
		return false
	}
	c.now = next.at
	next.fired = true
	c.mu.Unlock()
	next.f()
	return true
}

func (c *manualClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (c *manualClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func (c *manualClock) nextLocked() *manualTimer {
	armed := make([]*manualTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			armed = append(armed, t)
		}
	}
	if len(armed) == 0 {
		return nil
	}
	sort.Slice(armed, func(i, j int) bool {
		if armed[i].at == armed[j].at {
			return armed[i].seq < armed[j].seq
		}
		return armed[i].at < armed[j].at
	})
	return armed[0]
}

type remoteFake struct {
	mu sync.Mutex

	ack       domain.UploadAck
	uploadErr error
	uploads   []string
	hints     []string

	statusFn    func(ctx context.Context, id string) (domain.StatusReport, error)
	statusCalls map[string]int

	reindexErr error
	reindexed  []string

	deleteErr error
	deleted   []string

	listed    []domain.RemoteDocument
	listErr   error
	listCalls int
	listFn    func(ctx context.Context) ([]domain.RemoteDocument, error)
}

func newRemoteFake() *remoteFake {
	return &remoteFake{
		ack:         domain.UploadAck{DocumentID: "doc-1", Status: domain.RemoteProcessing},
		statusCalls: map[string]int{},
	}
}

func (f *remoteFake) Upload(_ context.Context, file domain.UploadFile, citeKey string) (domain.UploadAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, file.Name)
	f.hints = append(f.hints, citeKey)
	if f.uploadErr != nil {
		return domain.UploadAck{}, f.uploadErr
	}
	return f.ack, nil
}

func (f *remoteFake) Status(ctx context.Context, id string) (domain.StatusReport, error) {
	f.mu.Lock()
	f.statusCalls[id]++
	fn := f.statusFn
	f.mu.Unlock()

	if fn == nil {
		return domain.StatusReport{DocumentID: id, Status: domain.RemoteProcessing}, nil
	}
	return fn(ctx, id)
}

func (f *remoteFake) Reindex(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexed = append(f.reindexed, id)
	return f.reindexErr
}

func (f *remoteFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *remoteFake) List(ctx context.Context) ([]domain.RemoteDocument, error) {
	f.mu.Lock()
	f.listCalls++
	fn := f.listFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.RemoteDocument(nil), f.listed...), nil
}

func (f *remoteFake) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[id]
}

func (f *remoteFake) setList(docs ...domain.RemoteDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = docs
}

func (f *remoteFake) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type searcherFake struct {
	mu      sync.Mutex
	queries []string
	fn      func(ctx context.Context, query string, topK int) (domain.SearchResponse, error)
}

func (f *searcherFake) Search(ctx context.Context, query string, topK int) (domain.SearchResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return domain.SearchResponse{
			Query:   query,
			Results: []domain.EvidenceResult{{DocumentID: "doc-1", Text: "passage for " + query, Score: 0.9}},
			Total:   1,
		}, nil
	}
	return fn(ctx, query, topK)
}

func (f *searcherFake) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type busFake struct {
	mu       sync.Mutex
	handlers map[domain.SignalName][]ports.SignalHandler
	events   []domain.Signal
	unsubs   int
}

func newBusFake() *busFake {
	return &busFake{handlers: map[domain.SignalName][]ports.SignalHandler{}}
}

func (b *busFake) Publish(ctx context.Context, sig domain.Signal) error {
	b.mu.Lock()
	b.events = append(b.events, sig)
	handlers := append([]ports.SignalHandler(nil), b.handlers[sig.Name]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, sig)
	}
	return nil
}

func (b *busFake) Subscribe(name domain.SignalName, handler ports.SignalHandler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], handler)
	idx := len(b.handlers[name]) - 1
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.handlers[name][idx] = func(context.Context, domain.Signal) {}
			b.unsubs++
		})
	}, nil
}

func (b *busFake) Named(name domain.SignalName) []domain.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Signal
	for _, sig := range b.events {
		if sig.Name == name {
			out = append(out, sig)
		}
	}
	return out
}

type bibliographyFake struct {
	mu      sync.Mutex
	entries []domain.BibliographyEntry
	err     error
}

func (f *bibliographyFake) Entries(context.Context) ([]domain.BibliographyEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BibliographyEntry(nil), f.entries...), f.err
}

type generatorFake struct {
	question string
	sources  int
	err      error
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, results []domain.EvidenceResult) (string, error) {
	f.question = question
	f.sources = len(results)
	if f.err != nil {
		return "", f.err
	}
	return "answer", nil
}

func pdfFile(name string, size int64) domain.UploadFile {
	return domain.UploadFile{Name: name, ContentType: "application/pdf", Size: size}
}
