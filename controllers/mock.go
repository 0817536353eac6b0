package controllers

import (
	"context"
	"fmt"
)

// MockBrowser is an in-memory Browser used by this engine's own tests and
// anyone exercising the executor without a real automation stack attached.
// DOMQueryResults is keyed by selector; ExecuteDOMQuery returns whatever is
// registered there (or an empty slice).
type MockBrowser struct {
	DOMQueryResults map[string][]Row
	NavigateCalls   []string
	EvaluateJSResults map[string]interface{}
}

// NewMockBrowser returns an empty MockBrowser ready for DOMQueryResults to
// be populated by the caller.
func NewMockBrowser() *MockBrowser {
	return &MockBrowser{DOMQueryResults: map[string][]Row{}, EvaluateJSResults: map[string]interface{}{}}
}

func (m *MockBrowser) ExecuteNavigate(_ context.Context, _ string, url string) (NavigateResult, error) {
	m.NavigateCalls = append(m.NavigateCalls, url)
	return NavigateResult{URL: url, StatusCode: 200}, nil
}

func (m *MockBrowser) ExecuteDOMQuery(_ context.Context, _ string, selector string, fields []string) ([]Row, error) {
	rows, ok := m.DOMQueryResults[selector]
	if !ok {
		return nil, nil
	}
	if len(fields) == 0 {
		return rows, nil
	}
	projected := make([]Row, len(rows))
	for i, r := range rows {
		p := Row{}
		for _, f := range fields {
			p[f] = r[f]
		}
		projected[i] = p
	}
	return projected, nil
}

func (m *MockBrowser) ExecuteClick(_ context.Context, _ string, _ string) error { return nil }
func (m *MockBrowser) ExecuteType(_ context.Context, _ string, _, _ string) error { return nil }
func (m *MockBrowser) ExecuteWait(_ context.Context, _ string, _ string, _ int) error { return nil }
func (m *MockBrowser) ExecuteScreenshot(_ context.Context, _ string) ([]byte, error) { return []byte("png"), nil }
func (m *MockBrowser) ExecutePDF(_ context.Context, _ string) ([]byte, error) { return []byte("pdf"), nil }

func (m *MockBrowser) ExecuteEvaluateJS(_ context.Context, stepID string, _ string) (interface{}, error) {
	if v, ok := m.EvaluateJSResults[stepID]; ok {
		return v, nil
	}
	return nil, nil
}

// MockProxy is an in-memory Proxy backed by a plain map, with no TTL
// expiry enforcement - good enough for exercising cache-hit/miss dispatch
// in tests without a real cache tier.
type MockProxy struct {
	store map[string]interface{}
}

// NewMockProxy returns an empty MockProxy.
func NewMockProxy() *MockProxy {
	return &MockProxy{store: map[string]interface{}{}}
}

func (m *MockProxy) ExecuteCacheLookup(_ context.Context, key string) (CacheLookupResult, error) {
	v, ok := m.store[key]
	if !ok {
		return CacheLookupResult{Hit: false, Reason: "not found"}, nil
	}
	return CacheLookupResult{Hit: true, Value: v}, nil
}

func (m *MockProxy) ExecuteCacheStore(_ context.Context, key string, value interface{}, _ int) error {
	m.store[key] = value
	return nil
}

func (m *MockProxy) InterceptRequest(_ context.Context, request interface{}) (interface{}, error) {
	return request, nil
}

func (m *MockProxy) InterceptResponse(_ context.Context, response interface{}) (interface{}, error) {
	return response, nil
}

func (m *MockProxy) CheckRateLimit(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// MockFormatter renders data as "<format>:" followed by fmt's %+v form, ignoring
// FormatOptions - only useful for exercising the "a formatter was called"
// path in tests.
type MockFormatter struct{}

func (MockFormatter) Format(data interface{}, format string, _ FormatOptions) (interface{}, error) {
	return fmt.Sprintf("%s:%+v", format, data), nil
}

var (
	_ Browser   = (*MockBrowser)(nil)
	_ Proxy     = (*MockProxy)(nil)
	_ Formatter = MockFormatter{}
)
