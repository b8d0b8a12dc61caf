// Package confluence loads wiki pages for indexing through the Confluence
// Cloud REST content API. Crawls are paced with a client-side rate limiter so
// a full-space fetch never trips the API's abuse protection.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"askhub.app/askhub/internal/domain"
)

const pageLimit = 50

type Config struct {
	BaseURL  string
	Username string
	APIToken string
	Spaces   []string

	// RequestsPerSecond caps the crawl pace. Zero means 2 rps.
	RequestsPerSecond float64

	// HTTPClient overrides the transport. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	username   string
	apiToken   string
	spaces     []string
	limiter    *rate.Limiter
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		apiToken:   cfg.APIToken,
		spaces:     cfg.Spaces,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		httpClient: httpClient,
	}
}

// LoadAll fetches every page from the configured spaces. An empty space list
// crawls the whole site.
func (c *Client) LoadAll(ctx context.Context) ([]domain.Document, error) {
	spaces := c.spaces
	if len(spaces) == 0 {
		spaces = []string{""}
	}

	var docs []domain.Document
	for _, space := range spaces {
		spaceDocs, err := c.loadSpace(ctx, space)
		if err != nil {
			return nil, fmt.Errorf("loading space %q: %w", space, err)
		}
		docs = append(docs, spaceDocs...)
	}

	slog.InfoContext(ctx, "confluence load complete",
		"spaces", len(spaces),
		"documents", len(docs))
	return docs, nil
}

type contentPage struct {
	Results []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Links struct {
			WebUI string `json:"webui"`
		} `json:"_links"`
		Body struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
	} `json:"results"`
	Size  int `json:"size"`
	Links struct {
		Base string `json:"base"`
	} `json:"_links"`
}

func (c *Client) loadSpace(ctx context.Context, space string) ([]domain.Document, error) {
	var docs []domain.Document
	start := 0
	for {
		page, err := c.fetchPage(ctx, space, start)
		if err != nil {
			return nil, err
		}

		base := page.Links.Base
		if base == "" {
			base = c.baseURL
		}
		for _, r := range page.Results {
			text := stripHTML(r.Body.Storage.Value)
			if strings.TrimSpace(text) == "" {
				continue
			}
			docs = append(docs, domain.Document{
				Title: r.Title,
				URL:   base + r.Links.WebUI,
				Text:  text,
			})
		}

		if page.Size < pageLimit {
			return docs, nil
		}
		start += pageLimit
	}
}

func (c *Client) fetchPage(ctx context.Context, space string, start int) (*contentPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := url.Values{}
	query.Set("type", "page")
	query.Set("expand", "body.storage")
	query.Set("limit", fmt.Sprint(pageLimit))
	query.Set("start", fmt.Sprint(start))
	if space != "" {
		query.Set("spaceKey", space)
	}

	endpoint := c.baseURL + "/rest/api/content?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetching content: status %d: %s", resp.StatusCode, body)
	}

	var page contentPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding content page: %w", err)
	}
	return &page, nil
}

var (
	blockTagRe = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|br)>|<br\s*/?>`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
	blankRe    = regexp.MustCompile(`\n{3,}`)
)

// stripHTML flattens Confluence storage-format markup into plain text with
// paragraph breaks preserved, which the index splitter relies on.
func stripHTML(s string) string {
	s = blockTagRe.ReplaceAllString(s, "\n\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
