// Package controllers defines the narrow interfaces the executor dispatches
// to for everything outside this engine's scope: the browser, the proxy
// (fetch/cache/intercept), and result formatting. Bodies belong to a real
// browser-automation/proxy stack; this package only states the contract, so
// the executor never knows whether a "browser" is headless Chrome or an
// in-memory test double.
package controllers

import "context"

// Row is one extracted DOM row: field name -> value.
type Row map[string]interface{}

// NavigateResult is what the browser controller returns for a NAVIGATE step.
type NavigateResult struct {
	URL        string
	Redirects  []string
	StatusCode int
}

// CacheLookupResult is what the proxy controller returns for a cache probe.
type CacheLookupResult struct {
	Hit      bool
	Reason   string
	Value    interface{}
	StoredAt int64
	ExpiresAt int64
	TTLSeconds int
	AgeSeconds int
}

// Browser is the narrow interface the executor dispatches NAVIGATE,
// DOM_QUERY, CLICK, TYPE, WAIT, SCREENSHOT, PDF, and EVALUATE_JS steps to.
type Browser interface {
	ExecuteNavigate(ctx context.Context, stepID string, url string) (NavigateResult, error)
	ExecuteDOMQuery(ctx context.Context, stepID string, selector string, fields []string) ([]Row, error)
	ExecuteClick(ctx context.Context, stepID string, selector string) error
	ExecuteType(ctx context.Context, stepID string, selector, text string) error
	ExecuteWait(ctx context.Context, stepID string, selector string, timeoutMS int) error
	ExecuteScreenshot(ctx context.Context, stepID string) ([]byte, error)
	ExecutePDF(ctx context.Context, stepID string) ([]byte, error)
	ExecuteEvaluateJS(ctx context.Context, stepID string, script string) (interface{}, error)
}

// Proxy is the narrow interface the executor dispatches INTERCEPT_REQUEST,
// MODIFY_REQUEST, CACHE_LOOKUP, and CACHE_STORE steps to.
type Proxy interface {
	ExecuteCacheLookup(ctx context.Context, key string) (CacheLookupResult, error)
	ExecuteCacheStore(ctx context.Context, key string, value interface{}, ttlSeconds int) error
	InterceptRequest(ctx context.Context, request interface{}) (interface{}, error)
	InterceptResponse(ctx context.Context, response interface{}) (interface{}, error)
	CheckRateLimit(ctx context.Context, key string) (bool, error)
}

// Formatter renders a query result's data into one of the engine's output
// formats.
type Formatter interface {
	Format(data interface{}, format string, options FormatOptions) (interface{}, error)
}

// FormatOptions tunes how a Formatter renders a result.
type FormatOptions struct {
	Pretty         bool
	Indent         int
	MaxDepth       int
	IncludeHeaders bool
	Delimiter      string
	Quote          string
	Escape         string
}
