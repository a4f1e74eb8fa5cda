package idx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idx_portal/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-key", nil)
	c.SetClock(func() time.Time { return fixedNow })
	return c
}

func TestFindNewMatching_QueryAndFilter(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clients/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("accesskey") != "test-key" || r.Header.Get("outputtype") != "json" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		query = r.URL.RawQuery
		w.Write([]byte(`[
			{"listingID": "A1", "address": "1 Old Rd", "cityName": "Windsor", "listPrice": "400000", "propType": "SFR", "propStatus": "Active", "dateAdded": "2024-01-01 09:00:00"},
			{"listingID": "A2", "address": "2 New Rd", "cityName": "Windsor", "listPrice": 525000, "propType": "TH", "bedrooms": "3", "totalBaths": "2.5", "propStatus": "Active", "dateAdded": "2024-02-10 09:00:00"},
			{"listingID": "A3", "address": "3 Sold Rd", "cityName": "Windsor", "listPrice": "610,000", "propStatus": "Sold", "dateAdded": "2024-02-11 09:00:00"},
			{"listingID": "A4", "address": "4 Newer Rd", "cityName": "Windsor", "listPrice": "480000", "propStatus": "contingent", "dateAdded": "2024-02-12 09:00:00"},
			{"listingID": "A5", "address": "5 Latest Rd", "cityName": "Windsor", "listPrice": "499000", "dateAdded": "2024-02-20 09:00:00"}
		]`))
	})

	minPrice := 300000.0
	beds := 2
	criteria := models.SearchCriteria{
		Cities:        []string{"Windsor"},
		MinPrice:      &minPrice,
		PropertyTypes: []string{"townhouse", "Single Family"},
		MinBedrooms:   &beds,
	}
	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	got, err := c.FindNewMatching(context.Background(), criteria, &since, 50)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	for _, want := range []string{"city=Windsor", "minprice=300000", "propertytype=TH%2CSFR", "bedrooms=2%2B", "limit=50", "offset=0"} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected %q in query %q", want, query)
		}
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 new eligible listings, got %d: %+v", len(got), got)
	}
	if got[0].MLSNumber != "A5" || got[1].MLSNumber != "A2" {
		t.Fatalf("expected newest first [A5 A2], got [%s %s]", got[0].MLSNumber, got[1].MLSNumber)
	}
	a2 := got[1]
	if a2.Price != 525000 || a2.PropertyType != "Townhouse" || *a2.Bedrooms != 3 || *a2.Bathrooms != 2 {
		t.Fatalf("unexpected mapping %+v", a2)
	}
	if !a2.PermitIDX || a2.Province != "BC" || a2.Brokerage != "Unknown" {
		t.Fatalf("unexpected defaults %+v", a2)
	}
}

func TestFindNewMatching_ClampsLimit(t *testing.T) {
	var limit string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		limit = r.URL.Query().Get("limit")
		w.Write([]byte(`[]`))
	})
	if _, err := c.FindNewMatching(context.Background(), models.SearchCriteria{}, nil, 1000); err != nil {
		t.Fatalf("search: %v", err)
	}
	if limit != "350" {
		t.Fatalf("expected limit clamped to 350, got %s", limit)
	}
}

func TestFindNewMatching_WalksPagesForNewest(t *testing.T) {
	var offsets []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		switch offset {
		case "0":
			w.Write([]byte(`[
				{"listingID": "P1", "cityName": "Windsor", "listPrice": "400000", "dateAdded": "2024-02-02 09:00:00"},
				{"listingID": "P2", "cityName": "Windsor", "listPrice": "410000", "dateAdded": "2024-02-03 09:00:00"}
			]`))
		case "2":
			w.Write([]byte(`[
				{"listingID": "P3", "cityName": "Windsor", "listPrice": "420000", "dateAdded": "2024-02-25 09:00:00"}
			]`))
		default:
			t.Errorf("unexpected offset %s", offset)
			w.Write([]byte(`[]`))
		}
	})

	got, err := c.FindNewMatching(context.Background(), models.SearchCriteria{}, nil, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(offsets) != 2 || offsets[1] != "2" {
		t.Fatalf("expected two pages at offsets 0 and 2, got %v", offsets)
	}
	if len(got) != 2 || got[0].MLSNumber != "P3" || got[1].MLSNumber != "P2" {
		t.Fatalf("expected newest two [P3 P2] across pages, got %+v", got)
	}
}

func TestFindNewMatching_StopsAtPageCap(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"listingID": "X` + r.URL.Query().Get("offset") + `", "cityName": "Windsor", "listPrice": "400000", "dateAdded": "2024-02-02 09:00:00"}]`))
	})
	if _, err := c.FindNewMatching(context.Background(), models.SearchCriteria{}, nil, 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls != maxSearchPages {
		t.Fatalf("expected %d requests, got %d", maxSearchPages, calls)
	}
}

func TestFindNewMatching_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid access key", http.StatusUnauthorized)
	})
	_, err := c.FindNewMatching(context.Background(), models.SearchCriteria{}, nil, 10)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

func TestFetchActive_DedupesAcrossEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clients/featured":
			w.Write([]byte(`{
				"b": {"listingID": "F2", "address": "2 Elm", "listPrice": "300000"},
				"a": {"listingID": "F1", "address": "1 Elm", "listPrice": "250000", "image": {"0": {"url": "https://img.example.com/f1.jpg"}, "totalCount": 1}},
				"totalCount": 2
			}`))
		case "/clients/sold":
			w.Write([]byte(`[
				{"listingID": "F1", "address": "1 Elm duplicate", "propStatus": "sold"},
				{"idxID": "S1", "streetNumber": "9", "streetName": "Oak St", "propStatus": "sold", "featuredImage": "https://img.example.com/s1.jpg"}
			]`))
		default:
			http.NotFound(w, r)
		}
	})

	got, err := c.FetchActive(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 unique listings, got %d", len(got))
	}
	if got[0].MLSNumber != "F1" || got[1].MLSNumber != "F2" || got[2].MLSNumber != "S1" {
		t.Fatalf("unexpected order %s %s %s", got[0].MLSNumber, got[1].MLSNumber, got[2].MLSNumber)
	}
	if got[0].Address != "1 Elm" || got[0].PhotoURL != "https://img.example.com/f1.jpg" {
		t.Fatalf("first occurrence should win: %+v", got[0])
	}
	s1 := got[2]
	if s1.Address != "9 Oak St" || s1.Status != models.ListingStatusSold || s1.PhotoURL != "https://img.example.com/s1.jpg" {
		t.Fatalf("unexpected sold mapping %+v", s1)
	}
	if !s1.ListingDate.Equal(fixedNow) {
		t.Fatalf("undated listing should use the clock, got %v", s1.ListingDate)
	}
}

func TestFetchActive_PartialAndTotalFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/clients/sold" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"listingID": "F1"}]`))
	})
	got, err := c.FetchActive(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("expected partial success, got %d listings, err %v", len(got), err)
	}

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := down.FetchActive(context.Background()); err == nil {
		t.Fatalf("expected error when every endpoint fails")
	}
}

func TestGetListing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clients/listing/R100":
			w.Write([]byte(`{"listingID": "R100", "address": "100 Main", "sqFt": "1,850", "latitude": "42.31", "longitude": "-83.03", "propType": "CND"}`))
		default:
			http.NotFound(w, r)
		}
	})

	l, err := c.GetListing(context.Background(), "R100")
	if err != nil || l == nil {
		t.Fatalf("get listing: %v %v", l, err)
	}
	if *l.SquareFeet != 1850 || l.PropertyType != "Condo/Apartment" || l.Latitude != 42.31 {
		t.Fatalf("unexpected mapping %+v", l)
	}

	missing, err := c.GetListing(context.Background(), "NOPE")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for unknown listing, got %v %v", missing, err)
	}
}
