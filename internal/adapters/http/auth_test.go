package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIKeyGuardsSessionRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret-key"
	handler := newTestHandler(cfg, nil, nil)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic secret-key", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer secret-key", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/documents", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, res.Code, res.Body.String())
			}
			if tc.want != http.StatusUnauthorized {
				return
			}
			if res.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate header")
			}
			var body errorResponse
			if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil || !strings.Contains(body.Error, "unauthorized") {
				t.Fatalf("unexpected error body %q", res.Body.String())
			}
		})
	}
}

func TestAPIKeyDoesNotGuardHealthz(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret-key"

	res := httptest.NewRecorder()
	newTestHandler(cfg, nil, nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected healthz without credentials, got %d", res.Code)
	}
}

func TestEmptyAPIKeyDisablesAuth(t *testing.T) {
	res := httptest.NewRecorder()
	newTestHandler(testConfig(), nil, nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/documents", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected open API without a key, got %d", res.Code)
	}
}
