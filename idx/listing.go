package idx

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"idx_portal/models"
)

// field accepts the strings, numbers and nulls IDX Broker mixes for scalar values
type field string

func (f *field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = field(strings.TrimSpace(s))
	case b[0] == '{', b[0] == '[':
		*f = ""
	default:
		*f = field(b)
	}
	return nil
}

// record is one listing as served by the client API
type record struct {
	ListingID          field           `json:"listingID"`
	IdxID              field           `json:"idxID"`
	CoListingOffice    field           `json:"coListingOfficeName"`
	ListingOffice      field           `json:"listingOfficeName"`
	Address            field           `json:"address"`
	StreetNumber       field           `json:"streetNumber"`
	StreetName         field           `json:"streetName"`
	CityName           field           `json:"cityName"`
	City               field           `json:"city"`
	State              field           `json:"state"`
	Zipcode            field           `json:"zipcode"`
	PostalCode         field           `json:"postalCode"`
	ListPrice          field           `json:"listPrice"`
	Price              field           `json:"price"`
	PropType           field           `json:"propType"`
	PropertyType       field           `json:"propertyType"`
	Bedrooms           field           `json:"bedrooms"`
	TotalBaths         field           `json:"totalBaths"`
	Bathrooms          field           `json:"bathrooms"`
	SqFt               field           `json:"sqFt"`
	LivingArea         field           `json:"livingArea"`
	Remarks            field           `json:"remarks"`
	ListingDescription field           `json:"listingDescription"`
	Latitude           field           `json:"latitude"`
	Lat                field           `json:"lat"`
	Longitude          field           `json:"longitude"`
	Lng                field           `json:"lng"`
	PropStatus         field           `json:"propStatus"`
	Status             field           `json:"status"`
	DateAdded          field           `json:"dateAdded"`
	ListingDate        field           `json:"listingDate"`
	Updated            field           `json:"updated"`
	ModifiedDate       field           `json:"modifiedDate"`
	Image              json.RawMessage `json:"image"`
	FeaturedImage      field           `json:"featuredImage"`
	Error              field           `json:"error"`
}

var propertyTypes = map[string]string{
	"SFR": "Single Family",
	"TH":  "Townhouse",
	"CND": "Condo/Apartment",
	"MUL": "Multi-Family",
	"LND": "Vacant Land",
	"MH":  "Manufactured/Mobile",
}

var statuses = map[string]models.ListingStatus{
	"active":     models.ListingStatusActive,
	"pending":    models.ListingStatusPending,
	"contingent": models.ListingStatusPending,
	"sold":       models.ListingStatusSold,
	"expired":    models.ListingStatusExpired,
	"withdrawn":  models.ListingStatusWithdrawn,
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// decodeRecords accepts either a JSON array of listings or an object keyed by listing id
func decodeRecords(raw []byte) ([]record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var records []record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(keyed))
	for k, v := range keyed {
		if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '{' {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	records := make([]record, 0, len(keys))
	for _, k := range keys {
		var r record
		if err := json.Unmarshal(keyed[k], &r); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (r *record) mlsNumber() string {
	return string(first(r.ListingID, r.IdxID))
}

// toListing normalizes a record. Anything served by IDX Broker is IDX-permitted.
func (r *record) toListing(now time.Time) models.Listing {
	address := string(r.Address)
	if address == "" {
		address = strings.TrimSpace(string(r.StreetNumber) + " " + string(r.StreetName))
	}

	l := models.Listing{
		MLSNumber:    r.mlsNumber(),
		Brokerage:    string(first(r.CoListingOffice, r.ListingOffice, "Unknown")),
		Address:      address,
		City:         string(first(r.CityName, r.City)),
		Province:     string(first(r.State, "BC")),
		PostalCode:   string(first(r.Zipcode, r.PostalCode)),
		PropertyType: propertyTypeName(string(first(r.PropType, r.PropertyType))),
		Bedrooms:     positiveInt(first(r.Bedrooms)),
		Bathrooms:    positiveInt(first(r.TotalBaths, r.Bathrooms)),
		SquareFeet:   positiveInt(first(r.SqFt, r.LivingArea)),
		Description:  string(first(r.Remarks, r.ListingDescription)),
		PhotoURL:     photoURL(r.Image, string(r.FeaturedImage)),
		Status:       listingStatus(string(first(r.PropStatus, r.Status))),
		ListingDate:  parseDate(first(r.DateAdded, r.ListingDate), now),
		LastUpdated:  parseDate(first(r.Updated, r.ModifiedDate), now),
		PermitIDX:    true,
	}
	l.Price, _ = parseNumber(first(r.ListPrice, r.Price))
	l.Latitude, _ = parseNumber(first(r.Latitude, r.Lat))
	l.Longitude, _ = parseNumber(first(r.Longitude, r.Lng))
	return l
}

func first(values ...field) field {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseNumber reads values like "459900", "1,149,900.00" or "$525000"
func parseNumber(f field) (float64, bool) {
	s := strings.NewReplacer(",", "", "$", "", " ", "").Replace(string(f))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// positiveInt truncates fractional counts (2.5 baths is 2 full baths); zero means unknown
func positiveInt(f field) *int {
	v, ok := parseNumber(f)
	if !ok || v <= 0 {
		return nil
	}
	n := int(v)
	return &n
}

func parseDate(f field, fallback time.Time) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, string(f)); err == nil {
			return t
		}
	}
	return fallback
}

func propertyTypeName(code string) string {
	if name, ok := propertyTypes[code]; ok {
		return name
	}
	if code == "" {
		return "Residential"
	}
	return code
}

// propertyTypeCode is the inverse of propertyTypeName for search parameters
func propertyTypeCode(name string) string {
	for code, n := range propertyTypes {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return code
		}
	}
	return name
}

func listingStatus(s string) models.ListingStatus {
	if st, ok := statuses[strings.ToLower(s)]; ok {
		return st
	}
	return models.ListingStatusActive
}

// photoURL picks the first image from the string, array or index-keyed forms of "image"
func photoURL(raw json.RawMessage, featured string) string {
	var pick func(v any) string
	pick = func(v any) string {
		switch t := v.(type) {
		case string:
			return t
		case []any:
			if len(t) > 0 {
				return pick(t[0])
			}
		case map[string]any:
			if u, ok := t["url"].(string); ok {
				return u
			}
			if zero, ok := t["0"]; ok {
				return pick(zero)
			}
		}
		return ""
	}

	if len(raw) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			if u := pick(v); u != "" {
				return u
			}
		}
	}
	return featured
}
