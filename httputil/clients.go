package httputil

import (
	"net/http"
	"time"
)

// Clients holds the outbound HTTP clients shared by listing sources
type Clients struct {
	API  *http.Client // per-search queries, bounded by the call timeout
	Feed *http.Client // bulk listing downloads for the data refresh
}

func NewClients(callTimeout time.Duration) *Clients {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Clients{
		API:  &http.Client{Timeout: callTimeout, Transport: transport},
		Feed: &http.Client{Timeout: 5 * time.Minute, Transport: transport},
	}
}
