package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/config"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/export/xlsx"
	"github.com/GoBeromsu/My-awesome-RA/internal/observability/metrics"
)

const (
	maxJSONBodyBytes      = 1 << 20
	multipartMemoryBytes  = 32 << 20
	maxFilesPerUpload     = 8
	defaultMaxUploadBytes = 50 << 20
)

var loadRequestValidator = sync.OnceValues(newRequestValidator)

type Router struct {
	cfg       config.Config
	sessions  ports.SessionProvider
	bus       ports.SignalBus
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	heartbeat time.Duration
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// NewRouter serves the evidence panel of every session known to sessions.
// bus feeds the per-session event stream and may be nil.
func NewRouter(cfg config.Config, sessions ports.SessionProvider, bus ports.SignalBus, opts ...RouterOption) *Router {
	rt := &Router{
		cfg:       cfg,
		sessions:  sessions,
		bus:       bus,
		logger:    slog.Default(),
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	gate := newBackpressureGate(rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	api := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		api.Handle(pattern, gate.wrap(h))
	}

	handle("DELETE /v1/sessions/{session}", rt.closeSession)
	handle("GET /v1/sessions/{session}/references", rt.listReferences)
	handle("GET /v1/sessions/{session}/references/export", rt.exportReferences)
	handle("GET /v1/sessions/{session}/documents", rt.listDocuments)
	handle("POST /v1/sessions/{session}/documents", rt.uploadDocuments)
	handle("POST /v1/sessions/{session}/documents/{document_id}/reindex", rt.reindexDocument)
	handle("DELETE /v1/sessions/{session}/documents/{document_id}", rt.removeDocument)
	handle("POST /v1/sessions/{session}/paragraph", rt.paragraphChanged)
	handle("PUT /v1/sessions/{session}/auto", rt.setAutoMode)
	handle("GET /v1/sessions/{session}/search", rt.searchState)
	handle("POST /v1/sessions/{session}/search", rt.runSearch)
	handle("DELETE /v1/sessions/{session}/search", rt.clearSearch)
	handle("POST /v1/sessions/{session}/ask", rt.ask)
	// event streams are long-lived and stay outside the in-flight gate
	api.HandleFunc("GET /v1/sessions/{session}/events", rt.streamEvents)

	var v1 http.Handler = api
	if rt.cfg.OpenAPIValidation {
		validator, err := loadRequestValidator()
		if err != nil {
			panic(err)
		}
		v1 = validator.middleware(v1)
	}
	v1 = bearerAuthMiddleware(v1, rt.cfg.APIKey)
	v1 = rateLimitMiddleware(v1, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", v1)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// panel mounts the session named in the path, writing the error response
// when it cannot.
func (rt *Router) panel(w http.ResponseWriter, r *http.Request) (ports.EvidencePanel, bool) {
	panel, err := rt.sessions.Session(r.Context(), r.PathValue("session"))
	if err != nil {
		rt.writeError(w, r, err)
		return nil, false
	}
	return panel, true
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.CloseSession(r.PathValue("session")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listReferences(w http.ResponseWriter, r *http.Request) {
	refresh, err := parseRefresh(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	refs, err := panel.References(r.Context(), refresh)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if refs == nil {
		refs = []domain.ReferencePaper{}
	}
	writeJSON(w, http.StatusOK, referencesResponse{SessionID: panel.ID(), References: refs})
}

func (rt *Router) exportReferences(w http.ResponseWriter, r *http.Request) {
	refresh, err := parseRefresh(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	refs, err := panel.References(r.Context(), refresh)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.WriteReferences(&buf, refs); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="references-%s.xlsx"`, panel.ID()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	docs := panel.Documents()
	if docs == nil {
		docs = []domain.IndexedDocument{}
	}
	writeJSON(w, http.StatusOK, documentsResponse{SessionID: panel.ID(), Documents: docs})
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadBodyLimit())
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("multipart field 'file' is required")))
		return
	}
	if len(headers) > maxFilesPerUpload {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("at most %d files per upload", maxFilesPerUpload)))
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			rt.writeError(w, r, fmt.Errorf("open upload %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		files = append(files, domain.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	citeKey := strings.TrimSpace(r.FormValue("cite_key"))

	results := panel.Upload(r.Context(), files, citeKey)
	status := http.StatusAccepted
	if firstErr := allFailed(results); firstErr != nil {
		status = mapErrorToHTTPStatus(firstErr)
	}
	writeJSON(w, status, uploadResponse{Results: results})
}

func (rt *Router) reindexDocument(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	doc, err := panel.Reindex(r.Context(), r.PathValue("document_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) removeDocument(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	if err := panel.Remove(r.Context(), r.PathValue("document_id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) paragraphChanged(w http.ResponseWriter, r *http.Request) {
	var req paragraphRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	if err := panel.ParagraphChanged(r.Context(), req.Text); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (rt *Router) setAutoMode(w http.ResponseWriter, r *http.Request) {
	var req autoModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "auto mode", errors.New("enabled is required")))
		return
	}
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	panel.SetAutoMode(*req.Enabled)
	writeJSON(w, http.StatusOK, autoModeResponse{Enabled: panel.AutoMode()})
}

func (rt *Router) searchState(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, panel.SearchState())
}

func (rt *Router) runSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	state, err := panel.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) clearSearch(w http.ResponseWriter, r *http.Request) {
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}
	panel.ClearSearch()
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	panel, ok := rt.panel(w, r)
	if !ok {
		return
	}

	started := time.Now()
	answer, err := panel.Ask(r.Context(), req.Question, req.TopK)
	if rt.metrics != nil {
		rt.metrics.RecordAsk(time.Since(started), err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) uploadBodyLimit() int64 {
	perFile := rt.cfg.MaxUploadBytes
	if perFile <= 0 {
		perFile = defaultMaxUploadBytes
	}
	return perFile*maxFilesPerUpload + 1<<20
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestIDFromContext(r.Context())})
}

func parseRefresh(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("refresh")
	if raw == "" {
		return false, nil
	}
	refresh, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.WrapError(domain.ErrInvalidInput, "refresh", err)
	}
	return refresh, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

// allFailed returns the first error when no file of the batch was accepted.
func allFailed(results []domain.UploadResult) error {
	var first error
	for _, res := range results {
		if res.Err == nil {
			return nil
		}
		if first == nil {
			first = res.Err
		}
	}
	return first
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
