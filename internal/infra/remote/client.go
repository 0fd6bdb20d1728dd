package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"quizpack/internal/app"
	"quizpack/internal/domain"
)

// DefaultPattern selects pack files in a directory listing.
const DefaultPattern = "*.json"

const maxPackBytes = 4 << 20

var _ app.PackFetcher = (*Client)(nil)

// Client fetches pack payloads and directory listings from a pack endpoint:
//
//	GET {endpoint}/packs/{packId}  -> pack JSON
//	GET {endpoint}/packs           -> [{"name": "science.json", "type": "file"}, ...]
//
// Both requests carry "Authorization: Bearer {credential}" when a credential is set.
type Client struct {
	http    *http.Client
	pattern string
}

func NewClient(httpClient *http.Client, pattern string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Client{http: httpClient, pattern: pattern}
}

func (c *Client) FetchPack(ctx context.Context, endpoint, credential, packID string) ([]byte, error) {
	target := strings.TrimRight(endpoint, "/") + "/packs/" + url.PathEscape(packID)
	return c.get(ctx, target, credential)
}

type listEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ListPackFiles returns pack ids (file names without extension) matching the client's
// pattern. Directory entries are skipped.
func (c *Client) ListPackFiles(ctx context.Context, endpoint, credential string) ([]string, error) {
	target := strings.TrimRight(endpoint, "/") + "/packs"
	body, err := c.get(ctx, target, credential)
	if err != nil {
		return nil, err
	}
	var entries []listEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &domain.FetchError{URL: target, Err: fmt.Errorf("decode listing: %w", err)}
	}

	var ids []string
	for _, e := range entries {
		if e.Type == "dir" || e.Type == "tree" {
			continue
		}
		name := e.Name
		if name == "" {
			name = path.Base(e.Path)
		}
		if ok, _ := path.Match(c.pattern, name); !ok {
			continue
		}
		if id := strings.TrimSuffix(name, path.Ext(name)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, target, credential string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &domain.FetchError{URL: target, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPackBytes+1))
	if err != nil {
		return nil, &domain.FetchError{URL: target, Err: err}
	}
	if len(body) > maxPackBytes {
		return nil, &domain.FetchError{URL: target, Err: fmt.Errorf("response exceeds %d bytes", maxPackBytes)}
	}
	return body, nil
}
