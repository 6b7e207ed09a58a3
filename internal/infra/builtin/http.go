package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tooldeck/internal/domain"
)

const maxResponseBytes = 4 << 20

// httpInstance is the shape most domain tools have: a thin wrapper around
// one upstream endpoint configured through static settings.
type httpInstance struct {
	client   *http.Client
	endpoint string
	method   string
	headers  map[string]string
}

func newHTTPRequest(spec domain.ToolSpec) (domain.ToolInstance, error) {
	endpoint, _ := spec.Settings["endpoint"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("http_request tool %q needs settings.endpoint", spec.Name)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("http_request tool %q has invalid endpoint %q", spec.Name, endpoint)
	}

	method, _ := spec.Settings["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)
	if raw, ok := spec.Settings["headers"].(map[string]any); ok {
		for key, value := range raw {
			if s, ok := value.(string); ok {
				headers[key] = s
			}
		}
	}

	return &httpInstance{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		method:   strings.ToUpper(method),
		headers:  headers,
	}, nil
}

func (h *httpInstance) Execute(ctx context.Context, args map[string]any) (any, error) {
	target := h.endpoint
	if path, ok := args["path"].(string); ok && path != "" {
		target = strings.TrimRight(h.endpoint, "/") + "/" + strings.TrimLeft(path, "/")
	}

	method := h.method
	if m, ok := args["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if payload, ok := args["body"]; ok && payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, domain.Permanent("http.execute", fmt.Errorf("encode body: %w", err))
		}
		body = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, domain.Permanent("http.execute", err)
	}
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, domain.ClassifyExecution("http.execute", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.Transient("http.execute", err)
	}

	if resp.StatusCode >= 500 {
		return nil, domain.Transient("http.execute",
			fmt.Errorf("upstream returned %s", resp.Status))
	}
	if resp.StatusCode >= 400 {
		// 4xx means the tool's configuration or credentials are wrong.
		return nil, domain.Permanent("http.execute",
			fmt.Errorf("upstream returned %s", resp.Status)).
			WithHint("check the tool's endpoint, headers and credentials in the catalog settings")
	}

	result := map[string]any{
		"status": resp.StatusCode,
	}
	var decoded any
	if json.Unmarshal(data, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(data)
	}
	return result, nil
}
