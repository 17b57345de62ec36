package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad")), want: http.StatusBadRequest},
		{name: "validation", err: &domain.ValidationError{Filename: "huge.pdf", Constraint: "File exceeds limit"}, want: http.StatusBadRequest},
		{name: "unauthorized", err: &domain.TransportError{Operation: "upload", StatusCode: 403}, want: http.StatusUnauthorized},
		{name: "document not found", err: domain.WrapError(domain.ErrDocumentNotFound, "op", errors.New("x")), want: http.StatusNotFound},
		{name: "session not found", err: domain.WrapError(domain.ErrSessionNotFound, "op", errors.New("x")), want: http.StatusNotFound},
		{name: "superseded", err: domain.WrapError(domain.ErrSearchSuperseded, "search", errors.New("x")), want: http.StatusConflict},
		{name: "reported", err: &domain.ReportedError{DocumentID: "d", Message: "Parsing failed"}, want: http.StatusBadGateway},
		{name: "temporary", err: &domain.TransportError{Operation: "status", StatusCode: 502}, want: http.StatusServiceUnavailable},
		{name: "session closed", err: domain.ErrSessionClosed, want: http.StatusServiceUnavailable},
		{name: "body too large", err: domain.WrapError(domain.ErrInvalidInput, "upload", &http.MaxBytesError{Limit: 10}), want: http.StatusRequestEntityTooLarge},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Fatalf("mapErrorToHTTPStatus() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAskMapsDomainInvalidInputTo400(t *testing.T) {
	provider := newProviderFake()
	provider.panel("s1").askErr = domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("answer generation is not configured"))
	handler := newTestHandler(testConfig(), provider, nil)

	payload, _ := json.Marshal(map[string]any{"question": "test"})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/ask", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestReindexReturns404ForUnknownDocument(t *testing.T) {
	provider := newProviderFake()
	provider.panel("s1").reindexErr = domain.WrapError(domain.ErrDocumentNotFound, "reindex", errors.New("unknown document missing"))
	handler := newTestHandler(testConfig(), provider, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/documents/missing/reindex", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSupersededSearchReturns409(t *testing.T) {
	provider := newProviderFake()
	provider.panel("s1").searchErr = domain.WrapError(domain.ErrSearchSuperseded, "search", errors.New(`query "neural networks"`))
	handler := newTestHandler(testConfig(), provider, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/search", strings.NewReader(`{"query":"neural networks"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.RequestID == "" || !strings.Contains(body.Error, "superseded") {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestSessionMountFailureIsReported(t *testing.T) {
	provider := newProviderFake()
	provider.err = domain.ErrSessionClosed
	handler := newTestHandler(testConfig(), provider, nil)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/documents", nil))

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}
