package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://api.semanticscholar.org"
	DefaultTimeout = 15 * time.Second
	// DefaultRate matches the unauthenticated Semantic Scholar allowance.
	DefaultRate = 1.0

	paperFields = "title,authors,year"
	sourceName  = "semantic_scholar"
)

// Client looks up paper metadata on a Semantic Scholar compatible graph API.
// It implements ports.MetadataSearcher.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	exec       *resilience.Executor
	now        func() time.Time
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRate limits outgoing requests to perSecond with a burst of one.
// A non-positive value disables limiting.
func WithRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRate), 1),
		exec:       resilience.NewExecutor(resilience.DefaultConfig()),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type paper struct {
	PaperID string `json:"paperId"`
	Title   string `json:"title"`
	Year    *int   `json:"year"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type searchResponse struct {
	Total int     `json:"total"`
	Data  []paper `json:"data"`
}

// Lookup resolves an entry by DOI when it has one, falling back to a title
// search. It returns domain.ErrDocumentNotFound when neither matches.
func (c *Client) Lookup(ctx context.Context, entry domain.BibliographyEntry) (domain.PaperMetadata, error) {
	if entry.DOI != "" {
		p, err := c.byDOI(ctx, entry.DOI)
		switch {
		case err == nil:
			return c.toMetadata(entry.CiteKey, p), nil
		case !domain.IsKind(err, domain.ErrDocumentNotFound):
			return domain.PaperMetadata{}, err
		}
	}

	query := searchQuery(entry)
	if query == "" {
		return domain.PaperMetadata{}, domain.WrapError(domain.ErrDocumentNotFound, "metadata lookup", fmt.Errorf("nothing to search for %q", entry.CiteKey))
	}
	p, err := c.search(ctx, query)
	if err != nil {
		return domain.PaperMetadata{}, err
	}
	return c.toMetadata(entry.CiteKey, p), nil
}

func (c *Client) byDOI(ctx context.Context, doi string) (paper, error) {
	endpoint := fmt.Sprintf("%s/graph/v1/paper/DOI:%s?fields=%s", c.baseURL, url.PathEscape(doi), paperFields)
	var p paper
	if err := c.get(ctx, "metadata_doi", endpoint, &p); err != nil {
		return paper{}, err
	}
	if p.Title == "" {
		return paper{}, domain.WrapError(domain.ErrDocumentNotFound, "metadata doi", fmt.Errorf("doi %s has no title", doi))
	}
	return p, nil
}

func (c *Client) search(ctx context.Context, query string) (paper, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "1")
	params.Set("fields", paperFields)
	endpoint := c.baseURL + "/graph/v1/paper/search?" + params.Encode()

	var resp searchResponse
	if err := c.get(ctx, "metadata_search", endpoint, &resp); err != nil {
		return paper{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].Title == "" {
		return paper{}, domain.WrapError(domain.ErrDocumentNotFound, "metadata search", fmt.Errorf("no match for %q", query))
	}
	return resp.Data[0], nil
}

func (c *Client) get(ctx context.Context, operation, endpoint string, out any) error {
	err := c.exec.Execute(ctx, operation, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &domain.TransportError{Operation: operation, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &domain.TransportError{Operation: operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.TransportError{Operation: operation, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
		}
		return nil
	}, resilience.ClassifyTransport)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
			return domain.WrapError(domain.ErrDocumentNotFound, operation, err)
		}
		return resilience.WrapTemporary(operation, err)
	}
	return nil
}

func (c *Client) toMetadata(citeKey string, p paper) domain.PaperMetadata {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	meta := domain.PaperMetadata{
		CiteKey:   citeKey,
		Title:     p.Title,
		Authors:   strings.Join(names, "; "),
		Source:    sourceName,
		FetchedAt: c.now().UTC(),
	}
	if p.Year != nil && *p.Year > 0 {
		meta.Year = strconv.Itoa(*p.Year)
	}
	return meta
}

// searchQuery prefers the entry title and otherwise spells out the cite key.
func searchQuery(entry domain.BibliographyEntry) string {
	if title := strings.TrimSpace(entry.Title); title != "" {
		return title
	}
	if parts, ok := domain.ParseCiteKey(entry.CiteKey); ok {
		return strings.Join([]string{parts.Title, parts.Authors, parts.Year}, " ")
	}
	return strings.TrimSpace(entry.CiteKey)
}
