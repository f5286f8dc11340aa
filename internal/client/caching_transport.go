package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// DefaultTimeout bounds a single fetch made with the caching client.
const DefaultTimeout = 5 * time.Second

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control on
// responses, used to fetch branding assets such as the certificate logo.
// An empty cacheDir keeps the cache in memory.
func NewCachingHTTPClient(cacheDir string) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	return &http.Client{
		Transport: httpcache.NewTransport(cache),
		Timeout:   DefaultTimeout,
	}
}
