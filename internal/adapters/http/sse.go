package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

const eventBufferSize = 64

var streamedSignals = []domain.SignalName{
	domain.SignalShowEvidencePanel,
	domain.SignalReferencesUpdated,
	domain.SignalSearchStateChanged,
	domain.SignalSessionClosed,
}

// eventStream buffers the signals of one session for one SSE client. The bus
// never blocks on a slow client: signals that do not fit are dropped. The
// session_closed signal is never dropped; it closes done.
type eventStream struct {
	sessionID string
	events    chan domain.Signal
	dropped   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func newEventStream(sessionID string, size int) *eventStream {
	return &eventStream{
		sessionID: sessionID,
		events:    make(chan domain.Signal, size),
		done:      make(chan struct{}),
	}
}

func (s *eventStream) handle(_ context.Context, sig domain.Signal) {
	if sig.SessionID != s.sessionID {
		return
	}
	if sig.Name == domain.SignalSessionClosed {
		s.closeOnce.Do(func() { close(s.done) })
		return
	}
	select {
	case s.events <- sig:
	default:
		s.dropped.Add(1)
	}
}

func (s *eventStream) subscribe(bus ports.SignalBus) (func(), error) {
	unsubs := make([]func(), 0, len(streamedSignals))
	unsubscribe := func() {
		for _, fn := range unsubs {
			fn()
		}
	}
	for _, name := range streamedSignals {
		fn, err := bus.Subscribe(name, s.handle)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", name, err)
		}
		unsubs = append(unsubs, fn)
	}
	return unsubscribe, nil
}

func (rt *Router) streamEvents(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	if rt.bus == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "events", errors.New("signal bus is not configured")))
		return
	}

	stream := newEventStream(panel.ID(), eventBufferSize)
	unsubscribe, err := stream.subscribe(rt.bus)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer unsubscribe()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	subscriberID := uuid.NewString()
	logger := rt.logger.With("session_id", panel.ID(), "subscriber_id", subscriberID)
	logger.Info("event_stream_opened")
	if rt.metrics != nil {
		rt.metrics.EventStreamOpened()
		defer rt.metrics.EventStreamClosed()
	}
	defer func() {
		logger.Info("event_stream_closed", "dropped", stream.dropped.Load())
	}()

	// the first frame carries the current search state
	seq := 1
	initial, err := domain.NewSignal(domain.SignalSearchStateChanged, panel.ID(), domain.SearchStateChanged{State: panel.SearchState()})
	if err != nil {
		return
	}
	if err := writeEvent(w, seq, initial); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(rt.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stream.done:
			closed, err := domain.NewSignal(domain.SignalSessionClosed, panel.ID(), domain.SessionClosed{})
			if err == nil && writeEvent(w, seq+1, closed) == nil {
				_ = rc.Flush()
			}
			logger.Info("event_stream_session_closed")
			return
		case sig := <-stream.events:
			seq++
			if err := writeEvent(w, seq, sig); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, id int, sig domain.Signal) error {
	payload := []byte(sig.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var data bytes.Buffer
	if err := json.Compact(&data, payload); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, sig.Name, data.Bytes())
	return err
}
