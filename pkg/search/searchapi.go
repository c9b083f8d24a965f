package search

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

	"github.com/mikeboe/deep-research/pkg/research"
)

// searchAPIMaxResults is the hard cap of the SearchAPI.io google engine.
const searchAPIMaxResults = 10

const defaultSearchAPIBaseURL = "https://www.searchapi.io/api/v1/search"

// SearchAPI queries SearchAPI.io's google engine.
type SearchAPI struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewSearchAPI constructs a SearchAPI.io provider.
func NewSearchAPI(apiKey string) *SearchAPI {
	return &SearchAPI{
		APIKey:  apiKey,
		BaseURL: defaultSearchAPIBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// NewSearchAPIWithClient constructs a SearchAPI.io provider using the
// supplied HTTP client, useful for overriding the default timeout.
func NewSearchAPIWithClient(apiKey string, client *http.Client) *SearchAPI {
	return &SearchAPI{APIKey: apiKey, BaseURL: defaultSearchAPIBaseURL, client: client}
}

type searchAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search runs one query. maxResults is clamped to the engine's limit of 10.
func (s *SearchAPI) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("searchapi: API key is missing")
	}
	if maxResults <= 0 || maxResults > searchAPIMaxResults {
		maxResults = searchAPIMaxResults
	}

	params := url.Values{}
	params.Set("api_key", s.APIKey)
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("searchapi: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("searchapi: decode response: %w", err)
	}

	results := make([]research.SearchResult, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, research.SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
	}
	return results, nil
}
