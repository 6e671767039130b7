package datasetsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProvider calls a configurable dataset-search HTTP endpoint that
// returns a JSON array of candidates. The wire format of any specific
// dataset source (Kaggle or otherwise) is out of this package's scope — this
// client only needs the endpoint to speak the shape below.
type HTTPProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPProvider constructs an HTTPProvider.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type searchResponseItem struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
	SizeBytes   int64  `json:"size_bytes"`
	Popularity  int    `json:"popularity"`
}

// Search queries the configured endpoint and filters results to
// maxSizeBytes, computing keyword coverage against the response's name
// field.
func (p *HTTPProvider) Search(ctx context.Context, keywords []string, maxSizeBytes int64) ([]Candidate, error) {
	q := url.Values{}
	q.Set("q", strings.Join(keywords, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create dataset search request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dataset search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset search endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var items []searchResponseItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("unmarshal dataset search response: %w", err)
	}

	var candidates []Candidate
	for _, item := range items {
		if item.SizeBytes > maxSizeBytes {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:            item.Name,
			DownloadURL:     item.DownloadURL,
			SizeBytes:       item.SizeBytes,
			KeywordCoverage: coverage(item.Name, keywords),
			Popularity:      item.Popularity,
		})
	}
	return candidates, nil
}

func coverage(name string, keywords []string) int {
	lower := strings.ToLower(name)
	n := 0
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			n++
		}
	}
	return n
}
