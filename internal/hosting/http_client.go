package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const responseLimitBytes = int64(1 << 20)

// HTTPClient talks to the hosting platform's project API.
type HTTPClient struct {
	baseURL    string
	projectID  string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a hosting client bound to one hosting project.
func NewHTTPClient(baseURL, projectID, token string) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("hosting: invalid base URL %q", baseURL)
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		projectID:  projectID,
		token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// Attach adds the domain to the hosting project.
func (c *HTTPClient) Attach(ctx context.Context, domain string) (AttachResult, error) {
	path := "/v2/projects/" + url.PathEscape(c.projectID) + "/domains"
	var raw domainStatusAPI
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"name": domain}, &raw); err != nil {
		return AttachResult{}, err
	}
	return normalizeStatus(domain, raw), nil
}

// Verify re-checks DNS for an attached domain.
func (c *HTTPClient) Verify(ctx context.Context, domain string) (AttachResult, error) {
	path := "/v2/projects/" + url.PathEscape(c.projectID) + "/domains/" + url.PathEscape(domain) + "/verify"
	var raw domainStatusAPI
	if err := c.do(ctx, http.MethodPost, path, nil, &raw); err != nil {
		return AttachResult{}, err
	}
	return normalizeStatus(domain, raw), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hosting: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hosting: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	limited := io.LimitReader(resp.Body, responseLimitBytes)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("hosting: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseLimitBytes))
	if err != nil {
		return apiErr
	}
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Error.Code != "" {
			apiErr.Code = parsed.Error.Code
		}
		if parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
		}
	}
	return apiErr
}

// domainStatusAPI is the wire shape of an attach/verify response. The
// verification challenge arrives either as a single object or an array
// with one element depending on API version; normalizeStatus absorbs
// both so call sites never branch on the shape.
type domainStatusAPI struct {
	Name         string          `json:"name"`
	Verified     bool            `json:"verified"`
	Verification json.RawMessage `json:"verification,omitempty"`
}

type verificationAPI struct {
	Type  string `json:"type"`
	Name  string `json:"domain,omitempty"`
	Value string `json:"value"`
}

func normalizeStatus(domain string, in domainStatusAPI) AttachResult {
	out := AttachResult{Domain: domain, Verified: in.Verified}
	if in.Name != "" {
		out.Domain = in.Name
	}
	if out.Verified {
		return out
	}
	if rec := normalizeVerification(in.Verification); rec != nil {
		out.Required = rec
	}
	return out
}

func normalizeVerification(raw json.RawMessage) *DNSRecord {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var entry verificationAPI
	if trimmed[0] == '[' {
		var entries []verificationAPI
		if err := json.Unmarshal(trimmed, &entries); err != nil || len(entries) == 0 {
			return nil
		}
		entry = entries[0]
	} else if err := json.Unmarshal(trimmed, &entry); err != nil {
		return nil
	}
	if entry.Type == "" {
		return nil
	}
	return &DNSRecord{Type: entry.Type, Name: entry.Name, Value: entry.Value}
}
