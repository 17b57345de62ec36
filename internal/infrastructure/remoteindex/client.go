package remoteindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/resilience"
)

const (
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 2048
)

// Client talks to the remote indexing service. It implements both
// ports.RemoteIndex and ports.EvidenceSearcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// exec retries the document listing; single runs every other call,
	// whose failures are surfaced to the caller as they are.
	exec   *resilience.Executor
	single *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithExecutors(exec, single *resilience.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
		if single != nil {
			c.single = single
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	cfg := resilience.DefaultConfig()
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		exec:       resilience.NewExecutor(cfg),
		single:     resilience.NewExecutor(cfg.SingleAttempt()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (c *Client) Upload(ctx context.Context, file domain.UploadFile, citeKey string) (domain.UploadAck, error) {
	if file.Body == nil {
		return domain.UploadAck{}, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file body is required"))
	}

	var resp uploadResponse
	err := c.single.Execute(ctx, "remote_upload", func(ctx context.Context) error {
		body, contentType := multipartBody(file, citeKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/upload", body)
		if err != nil {
			_ = body.Close()
			return fmt.Errorf("create upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		return c.do(req, "upload", &resp)
	}, resilience.ClassifyTransport)
	if err != nil {
		return domain.UploadAck{}, resilience.WrapTemporary("remote upload", err)
	}
	if resp.DocumentID == "" {
		return domain.UploadAck{}, &domain.TransportError{Operation: "upload", Err: errors.New("response is missing document_id")}
	}
	return domain.UploadAck{
		DocumentID: resp.DocumentID,
		Status:     domain.RemoteStatus(strings.ToLower(resp.Status)),
		Message:    resp.Message,
	}, nil
}

// multipartBody streams the file through a pipe so uploads are never held
// in memory. The transport closes the reader, which ends the writer.
func multipartBody(file domain.UploadFile, citeKey string) (*io.PipeReader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, file, citeKey)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeMultipart(mw *multipart.Writer, file domain.UploadFile, citeKey string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return fmt.Errorf("copy %s: %w", file.Name, err)
	}
	if citeKey != "" {
		if err := mw.WriteField("cite_key", citeKey); err != nil {
			return err
		}
	}
	return nil
}

type statusResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	ChunkCount int    `json:"chunk_count"`
}

func (c *Client) Status(ctx context.Context, documentID string) (domain.StatusReport, error) {
	resp, err := resilience.Call(ctx, c.single, "remote_status", func(ctx context.Context) (statusResponse, error) {
		var out statusResponse
		err := c.getJSON(ctx, "/documents/"+url.PathEscape(documentID)+"/status", "status", &out)
		return out, err
	}, resilience.ClassifyTransport)
	if err != nil {
		return domain.StatusReport{}, resilience.WrapTemporary("remote status", err)
	}

	status := domain.RemoteStatus(strings.ToLower(resp.Status))
	switch status {
	case domain.RemoteProcessing, domain.RemoteIndexed, domain.RemoteError:
	default:
		return domain.StatusReport{}, &domain.TransportError{
			Operation: "status",
			Err:       fmt.Errorf("unknown document status %q", resp.Status),
		}
	}
	return domain.StatusReport{
		DocumentID: documentID,
		Status:     status,
		Message:    resp.Message,
		ChunkCount: resp.ChunkCount,
	}, nil
}

func (c *Client) Reindex(ctx context.Context, documentID string) error {
	err := c.single.Execute(ctx, "remote_reindex", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/"+url.PathEscape(documentID)+"/reindex", nil)
		if err != nil {
			return fmt.Errorf("create reindex request: %w", err)
		}
		return c.do(req, "reindex", nil)
	}, resilience.ClassifyTransport)
	return resilience.WrapTemporary("remote reindex", err)
}

func (c *Client) Delete(ctx context.Context, documentID string) error {
	err := c.single.Execute(ctx, "remote_delete", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/documents/"+url.PathEscape(documentID), nil)
		if err != nil {
			return fmt.Errorf("create delete request: %w", err)
		}
		return c.do(req, "delete", nil)
	}, resilience.ClassifyTransport)
	return resilience.WrapTemporary("remote delete", err)
}

// flexString accepts both JSON strings and numbers; the service reports
// years either way.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type listedDocument struct {
	DocumentID string     `json:"document_id"`
	Title      string     `json:"title"`
	Authors    flexString `json:"authors"`
	Year       flexString `json:"year"`
	CiteKey    string     `json:"cite_key"`
	ChunkCount int        `json:"chunk_count"`
	IndexedAt  flexString `json:"indexed_at"`
}

func (c *Client) List(ctx context.Context) ([]domain.RemoteDocument, error) {
	resp, err := resilience.Call(ctx, c.exec, "remote_list", func(ctx context.Context) ([]listedDocument, error) {
		var out struct {
			Documents []listedDocument `json:"documents"`
		}
		err := c.getJSON(ctx, "/documents", "list", &out)
		return out.Documents, err
	}, resilience.ClassifyTransport)
	if err != nil {
		return nil, resilience.WrapTemporary("remote list", err)
	}

	docs := make([]domain.RemoteDocument, 0, len(resp))
	for _, d := range resp {
		doc := domain.RemoteDocument{
			DocumentID: d.DocumentID,
			Title:      d.Title,
			CiteKey:    d.CiteKey,
			Authors:    string(d.Authors),
			Year:       string(d.Year),
			ChunkCount: d.ChunkCount,
			IndexedAt:  string(d.IndexedAt),
		}
		doc.FillFromCiteKey()
		docs = append(docs, doc)
	}
	return docs, nil
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type searchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	CiteKey    string  `json:"cite_key"`
}

func (c *Client) Search(ctx context.Context, query string, topK int) (domain.SearchResponse, error) {
	payload, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("marshal search request: %w", err)
	}

	type response struct {
		Results []searchResult `json:"results"`
		Query   string         `json:"query"`
		Total   int            `json:"total"`
	}
	resp, err := resilience.Call(ctx, c.single, "remote_search", func(ctx context.Context) (response, error) {
		var out response
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evidence/search", bytes.NewReader(payload))
		if err != nil {
			return out, fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		err = c.do(req, "search", &out)
		return out, err
	}, resilience.ClassifyTransport)
	if err != nil {
		return domain.SearchResponse{}, resilience.WrapTemporary("remote search", err)
	}

	results := make([]domain.EvidenceResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, domain.EvidenceResult{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Text:       r.Text,
			Page:       r.Page,
			Score:      r.Score,
			Title:      r.Title,
			CiteKey:    r.CiteKey,
		})
	}
	return domain.SearchResponse{Results: results, Query: resp.Query, Total: resp.Total}, nil
}

func (c *Client) getJSON(ctx context.Context, path, operation string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	return c.do(req, operation, out)
}

// do sends req and decodes a 2xx JSON body into out. A non-2xx answer carrying
// a "detail" message becomes *domain.ReportedError unless the status is a
// transient one; connection failures and other non-2xx answers become
// *domain.TransportError.
func (c *Client) do(req *http.Request, operation string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return &domain.TransportError{Operation: operation, Err: ctxErr}
		}
		return &domain.TransportError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail, reported := errorDetail(body)
		if reported && !transientStatus(resp.StatusCode) {
			return &domain.ReportedError{StatusCode: resp.StatusCode, Message: detail}
		}
		return &domain.TransportError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       detail,
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode %s response: %w", operation, err),
		}
	}
	return nil
}

// errorDetail extracts the FastAPI-style "detail" message. ok reports whether
// the body carried one; otherwise the raw body is returned.
func errorDetail(body []byte) (msg string, ok bool) {
	raw := strings.TrimSpace(string(body))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return raw, false
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s, s != ""
	}
	return string(payload.Detail), true
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
