package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

// maxResults is the page size limit of the Custom Search API
const maxResults = 10

// Query is one backend request
type Query struct {
	Text     string
	Restrict string // language restriction, e.g. "lang_en"
	Num      int
}

// Result is one backend hit
type Result struct {
	Title    string              `json:"title"`
	Link     string              `json:"link"`
	Snippet  string              `json:"snippet"`
	Metatags []map[string]string `json:"metatags,omitempty"`
}

// Backend executes web searches
type Backend interface {
	Name() string
	Query(ctx context.Context, q Query) ([]Result, error)
}

// GoogleBackend queries the Google Custom Search JSON API
type GoogleBackend struct {
	svc      *customsearch.Service
	engineID string
}

// NewGoogleBackend creates a backend from the search settings. cfg.Endpoint
// overrides the API base URL when non-empty. When client is non-nil requests
// go through its transport and timeout with the API key added per request.
func NewGoogleBackend(ctx context.Context, cfg model.SearchConfig, client *http.Client) (*GoogleBackend, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, fmt.Errorf("google search requires an API key and an engine id")
	}

	var opts []option.ClientOption
	if client != nil {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		// WithHTTPClient bypasses WithAPIKey, so the key goes on the transport
		trans, err := htransport.NewTransport(ctx, base, option.WithAPIKey(cfg.APIKey))
		if err != nil {
			return nil, fmt.Errorf("create custom search transport: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport:     trans,
			Timeout:       client.Timeout,
			CheckRedirect: client.CheckRedirect,
		}))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search client: %w", err)
	}
	return &GoogleBackend{svc: svc, engineID: cfg.EngineID}, nil
}

// Name identifies the backend in logs and errors
func (g *GoogleBackend) Name() string { return "google-search" }

// Query runs one search request
func (g *GoogleBackend) Query(ctx context.Context, q Query) ([]Result, error) {
	num := q.Num
	if num <= 0 || num > maxResults {
		num = maxResults
	}

	call := g.svc.Cse.List().
		Cx(g.engineID).
		Q(q.Text).
		Num(int64(num)).
		Fields(googleapi.Field("items(title,link,snippet,pagemap)")).
		Context(ctx)
	if q.Restrict != "" {
		call = call.Lr(q.Restrict)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, upstream(g.Name(), "query", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:    item.Title,
			Link:     item.Link,
			Snippet:  item.Snippet,
			Metatags: decodeMetatags(item.Pagemap),
		})
	}
	return results, nil
}

// decodeMetatags reads pagemap.metatags, stringifying non-string values
func decodeMetatags(raw googleapi.RawMessage) []map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var pagemap struct {
		Metatags []map[string]any `json:"metatags"`
	}
	if err := json.Unmarshal(raw, &pagemap); err != nil {
		return nil
	}

	out := make([]map[string]string, 0, len(pagemap.Metatags))
	for _, tags := range pagemap.Metatags {
		m := make(map[string]string, len(tags))
		for k, v := range tags {
			switch val := v.(type) {
			case string:
				m[strings.ToLower(k)] = val
			case nil:
			default:
				m[strings.ToLower(k)] = fmt.Sprint(val)
			}
		}
		out = append(out, m)
	}
	return out
}

func upstream(service, op string, err error) error {
	ue := &model.UpstreamError{Service: service, Op: op, Err: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		ue.StatusCode = gerr.Code
	}
	return ue
}
