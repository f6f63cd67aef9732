// Package httpcheck implements the "http" check type, adapted from the
// teacher's graph/tool.HTTPTool: GET/POST against a configured URL,
// returning status code, headers, and body as outputValue.
package httpcheck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/probelabs/visor-sub002/internal/provider"
)

// Provider issues one configured HTTP request per check execution.
type Provider struct {
	client *http.Client
}

// New constructs an httpcheck Provider with a client whose timeout is
// governed by the caller's context rather than a fixed duration, matching
// the teacher's HTTPTool ("Timeout handled via context").
func New() *Provider {
	return &Provider{client: &http.Client{}}
}

func (*Provider) Name() string { return "http" }
func (*Provider) Description() string {
	return "issues an HTTP GET or POST and captures status/headers/body"
}

// ValidateConfig requires a non-empty "url" and, if present, a GET/POST
// "method".
func (*Provider) ValidateConfig(config map[string]any) bool {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return false
	}
	if m, ok := config["method"].(string); ok && m != "" {
		switch strings.ToUpper(m) {
		case "GET", "POST":
		default:
			return false
		}
	}
	return true
}

type retryableError struct{ error }

func (retryableError) Retryable() bool { return true }

// Execute performs the configured request (§6.3 "execute(prInfo, config,
// dependencyResults, execContext)"). Connection-level failures are
// retryable (ProviderTransient, §7); a successful response with any status
// code is a terminal success — the caller's fail_if expressions decide
// whether a non-2xx status should fail the check.
func (p *Provider) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	urlStr, _ := req.Config["url"].(string)
	if urlStr == "" {
		return provider.Result{}, fmt.Errorf("http: url parameter required")
	}

	method := "GET"
	if m, ok := req.Config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if bodyStr, ok := req.Config["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("http: create request: %w", err)
	}

	if headers, ok := req.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if vs, ok := v.(string); ok {
				httpReq.Header.Set(k, vs)
			}
		}
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.Result{}, retryableError{fmt.Errorf("http: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, retryableError{fmt.Errorf("http: read response body: %w", err)}
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) == 1 {
			respHeaders[k] = v[0]
		} else {
			respHeaders[k] = v
		}
	}

	output := map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    respHeaders,
		"body":       string(respBody),
		"durationMs": time.Since(start).Milliseconds(),
	}
	return provider.Result{OutputValue: output}, nil
}
