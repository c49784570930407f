package tools

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

// DefaultSearchEndpoint is the Brave web search API.
const DefaultSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"

// SearchClient queries the Brave search API and renders results as plain
// text suitable for a model's tool output.
type SearchClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSearchClient builds a SearchClient; an empty endpoint selects
// DefaultSearchEndpoint.
func NewSearchClient(endpoint, apiKey string) *SearchClient {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	return &SearchClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type braveResponse struct {
	Query struct {
		Original       string `json:"original"`
		IsNavigational bool   `json:"is_navigational"`
		Country        string `json:"country"`
		PostalCode     string `json:"postal_code"`
		City           string `json:"city"`
	} `json:"query"`
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Profile     struct {
		Name string `json:"name"`
	} `json:"profile"`
	PageAge string `json:"page_age"`
}

// Search runs one query and returns the formatted result text.
func (c *SearchClient) Search(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("empty search query")
	}
	u := c.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return formatSearchResults(parsed), nil
}

// formatSearchResults renders the query details header and one block per
// result.
func formatSearchResults(data braveResponse) string {
	nav := "N/A"
	if data.Query.IsNavigational {
		nav = "true"
	}
	queryInfo := strings.Join([]string{
		"Original Query: " + na(data.Query.Original),
		"Is Navigational: " + nav,
		"Country: " + na(data.Query.Country),
		"Postal Code: " + na(data.Query.PostalCode),
		"City: " + na(data.Query.City),
	}, "\n")

	resultsInfo := "No results found."
	if len(data.Web.Results) > 0 {
		blocks := make([]string, 0, len(data.Web.Results))
		for _, r := range data.Web.Results {
			blocks = append(blocks, strings.Join([]string{
				"Title: " + na(r.Title),
				"URL: " + na(r.URL),
				"Description: " + na(r.Description),
				"Source: " + na(r.Profile.Name),
				"Age: " + na(r.PageAge),
			}, "\n"))
		}
		resultsInfo = strings.Join(blocks, "\n\n")
	}

	return "=== Query Details ===\n" + queryInfo + "\n\n=== Search Results ===\n" + resultsInfo
}

func na(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
