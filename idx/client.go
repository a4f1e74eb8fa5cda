package idx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"idx_portal/httputil"
	"idx_portal/models"
)

const DefaultBaseURL = "https://api.idxbroker.com"

// maxPageSize is the largest result window IDX Broker serves per request
const maxPageSize = 350

// maxSearchPages caps how many result windows one search walks. The API returns
// matches in no guaranteed order, so the newest listing can sit on any page.
const maxSearchPages = 5

// feedEndpoints are pulled for the daily refresh; sold is included for VOW display
var feedEndpoints = []string{"/clients/featured", "/clients/sold"}

// Client talks to the IDX Broker client API
type Client struct {
	baseURL string
	apiKey  string
	api     *http.Client
	feed    *http.Client
	now     func() time.Time
}

func NewClient(baseURL, apiKey string, clients *httputil.Clients) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if clients == nil {
		clients = httputil.NewClients(0)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		api:     clients.API,
		feed:    clients.Feed,
		now:     time.Now,
	}
}

// SetClock overrides the time used for listings without dates
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// FindNewMatching queries /clients/search page by page. IDX Broker ignores some
// filters and has no listed-after parameter or sort order, so eligibility, the since
// cutoff and newest-first ordering are applied here over every page fetched.
func (c *Client) FindNewMatching(ctx context.Context, criteria models.SearchCriteria, since *time.Time, limit int) ([]models.Listing, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := searchParams(criteria)
	params.Set("limit", strconv.Itoa(limit))

	seen := make(map[string]bool)
	var out []models.Listing
	for page := 0; page < maxSearchPages; page++ {
		params.Set("offset", strconv.Itoa(page*limit))
		raw, err := c.get(ctx, c.api, "/clients/search?"+params.Encode())
		if err != nil {
			return nil, err
		}
		records, err := decodeRecords(raw)
		if err != nil {
			return nil, fmt.Errorf("decode search page %d: %w", page+1, err)
		}

		now := c.now()
		for _, r := range records {
			l := r.toListing(now)
			if !l.Eligible() || seen[l.MLSNumber] {
				continue
			}
			if since != nil && !l.ListingDate.After(*since) {
				continue
			}
			seen[l.MLSNumber] = true
			out = append(out, l)
		}
		if len(records) < limit {
			break
		}
		if page == maxSearchPages-1 {
			slog.Warn("idx search hit page cap", "pages", maxSearchPages, "page_size", limit)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ListingDate.After(out[j].ListingDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FetchActive pulls the full refresh feed, deduplicated by MLS number. A failing
// endpoint is skipped; the call fails only when every endpoint does.
func (c *Client) FetchActive(ctx context.Context) ([]models.Listing, error) {
	seen := make(map[string]bool)
	var listings []models.Listing
	var errs []error

	for _, endpoint := range feedEndpoints {
		raw, err := c.get(ctx, c.feed, endpoint)
		if err != nil {
			slog.Warn("idx feed endpoint failed", "endpoint", endpoint, "error", err)
			errs = append(errs, err)
			continue
		}
		records, err := decodeRecords(raw)
		if err != nil {
			slog.Warn("idx feed decode failed", "endpoint", endpoint, "error", err)
			errs = append(errs, fmt.Errorf("decode %s: %w", endpoint, err))
			continue
		}

		now := c.now()
		for _, r := range records {
			l := r.toListing(now)
			if l.MLSNumber == "" || seen[l.MLSNumber] {
				continue
			}
			seen[l.MLSNumber] = true
			listings = append(listings, l)
		}
		slog.Info("idx feed fetched", "endpoint", endpoint, "records", len(records), "total", len(listings))
	}

	if len(errs) == len(feedEndpoints) {
		return nil, errors.Join(errs...)
	}
	return listings, nil
}

// GetListing fetches one listing by MLS number. Returns (nil, nil) when IDX Broker
// does not know it.
func (c *Client) GetListing(ctx context.Context, mlsNumber string) (*models.Listing, error) {
	raw, err := c.get(ctx, c.api, "/clients/listing/"+url.PathEscape(mlsNumber))
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("[]")) {
		return nil, nil
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if r.Error != "" || r.mlsNumber() == "" {
		return nil, nil
	}
	l := r.toListing(c.now())
	return &l, nil
}

var errNotFound = errors.New("idx: not found")

func (c *Client) get(ctx context.Context, hc *http.Client, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("accesskey", c.apiKey)
	req.Header.Set("outputtype", "json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusNoContent:
		return []byte("[]"), nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("IDX Broker API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// searchParams maps criteria onto /clients/search query parameters
func searchParams(c models.SearchCriteria) url.Values {
	params := url.Values{}
	if len(c.Cities) > 0 {
		params.Set("city", strings.Join(c.Cities, ","))
	}
	if c.MinPrice != nil {
		params.Set("minprice", strconv.FormatFloat(*c.MinPrice, 'f', -1, 64))
	}
	if c.MaxPrice != nil {
		params.Set("maxprice", strconv.FormatFloat(*c.MaxPrice, 'f', -1, 64))
	}
	if len(c.PropertyTypes) > 0 {
		codes := make([]string, 0, len(c.PropertyTypes))
		for _, t := range c.PropertyTypes {
			codes = append(codes, propertyTypeCode(t))
		}
		params.Set("propertytype", strings.Join(codes, ","))
	}
	if c.MinBedrooms != nil {
		params.Set("bedrooms", strconv.Itoa(*c.MinBedrooms)+"+")
	}
	if c.MinBathrooms != nil {
		params.Set("bathrooms", strconv.Itoa(*c.MinBathrooms)+"+")
	}
	if c.MinSquareFeet != nil {
		params.Set("sqft", strconv.Itoa(*c.MinSquareFeet)+"+")
	}
	return params
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
