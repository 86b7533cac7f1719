package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const pageSize = 50

// Item is one exchange headline.
type Item struct {
	ID        int64
	Title     string
	Published time.Time
}

func (i Item) String() string {
	return i.Published.Format("15:04") + " - " + i.Title
}

// MOEXClient reads the ISS site news feed.
type MOEXClient struct {
	baseURL    string
	httpClient *http.Client
	loc        *time.Location
	maxPages   int
}

// NewMOEXClient builds a client for baseURL (the sitenews.json endpoint).
// Publication times are interpreted in loc.
func NewMOEXClient(baseURL string, loc *time.Location) *MOEXClient {
	if loc == nil {
		loc = time.UTC
	}
	return &MOEXClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		loc:        loc,
		maxPages:   4,
	}
}

type issNewsResponse struct {
	SiteNews struct {
		Columns []string        `json:"columns"`
		Data    [][]interface{} `json:"data"`
	} `json:"sitenews"`
}

// FetchSince returns headlines published after since, newest first.
func (c *MOEXClient) FetchSince(ctx context.Context, since time.Time) ([]Item, error) {
	var all []Item

	for page := 0; page < c.maxPages; page++ {
		iss, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		idIdx, titleIdx, pubIdx := -1, -1, -1
		for i, col := range iss.SiteNews.Columns {
			switch col {
			case "id":
				idIdx = i
			case "title":
				titleIdx = i
			case "published_at":
				pubIdx = i
			}
		}
		if idIdx < 0 || titleIdx < 0 || pubIdx < 0 {
			return nil, fmt.Errorf("unexpected news columns: %v", iss.SiteNews.Columns)
		}

		reachedCutoff := false
		for _, row := range iss.SiteNews.Data {
			if len(row) <= pubIdx || len(row) <= titleIdx || len(row) <= idIdx {
				continue
			}

			pubStr, _ := row[pubIdx].(string)
			published, err := time.ParseInLocation("2006-01-02 15:04:05", pubStr, c.loc)
			if err != nil {
				continue
			}
			if !published.After(since) {
				reachedCutoff = true
				break
			}

			id, _ := row[idIdx].(float64)
			title, _ := row[titleIdx].(string)
			all = append(all, Item{ID: int64(id), Title: title, Published: published})
		}

		if reachedCutoff || len(iss.SiteNews.Data) < pageSize {
			break
		}
	}

	return all, nil
}

func (c *MOEXClient) fetchPage(ctx context.Context, page int) (*issNewsResponse, error) {
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%sstart=%d", c.baseURL, sep, page*pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create news request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch news page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MOEX news returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read news response: %w", err)
	}

	var iss issNewsResponse
	if err := json.Unmarshal(body, &iss); err != nil {
		return nil, fmt.Errorf("parse news response: %w", err)
	}
	return &iss, nil
}
