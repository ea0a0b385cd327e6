package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// cacheTTL is how long uploaded document content is held server side.
const cacheTTL = time.Hour

// CachedFile is an uploaded document together with its server-side cache.
type CachedFile struct {
	// URI locates the uploaded file for prompt attachment.
	URI string
	// MIMEType of the uploaded file.
	MIMEType string
	// CacheName is the cached-content resource name, empty when the file
	// was too small to cache.
	CacheName string
	// Reused reports that an existing server-side cache was found, so no
	// upload happened.
	Reused bool
}

// FileCache uploads documents and maintains server-side cached content so
// repeated questions against the same document do not resend it. Caches are
// keyed by display name derived from the file stem, so a rerun within the
// TTL reuses the existing cache.
type FileCache struct {
	client *Client
}

// NewFileCache wraps a client with file upload and caching operations.
func NewFileCache(client *Client) *FileCache {
	return &FileCache{client: client}
}

// cacheDisplayName derives the stable display name for a document path.
func cacheDisplayName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return "cache_" + stem
}

// Ensure returns a cached handle for path. An existing server-side cache
// with the same display name is reused as is; only on a miss is the file
// uploaded and a new cache created over it.
func (fc *FileCache) Ensure(ctx context.Context, path, mimeType string) (*CachedFile, error) {
	display := cacheDisplayName(path)

	existing, err := fc.findCache(ctx, display)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	if existing != "" {
		return &CachedFile{CacheName: existing, Reused: true}, nil
	}

	uploaded, err := fc.upload(ctx, path, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}

	cf := &CachedFile{URI: uploaded.URI, MIMEType: uploaded.MIMEType}

	name, err := fc.createCache(ctx, display, uploaded)
	if err != nil {
		// Caching is an optimization. The uploaded file is still usable
		// directly, so degrade rather than fail.
		fc.client.logger.Warn("cache creation failed, using direct file reference",
			"file", filepath.Base(path), "error", err)
		return cf, nil
	}
	cf.CacheName = name
	return cf, nil
}

// upload pushes the file bytes to the file service and waits for processing.
func (fc *FileCache) upload(ctx context.Context, path, mimeType string) (*uploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	meta, _ := json.Marshal(map[string]any{
		"file": map[string]any{"display_name": filepath.Base(path)},
	})
	metaHdr := make(map[string][]string)
	metaHdr["Content-Type"] = []string{"application/json"}
	metaPart, err := mw.CreatePart(metaHdr)
	if err != nil {
		return nil, err
	}
	if _, err := metaPart.Write(meta); err != nil {
		return nil, err
	}

	fileHdr := make(map[string][]string)
	fileHdr["Content-Type"] = []string{mimeType}
	filePart, err := mw.CreatePart(fileHdr)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(filePart, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fc.uploadBaseURL() + "/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	req.Header.Set("x-goog-api-key", fc.client.apiKey)

	resp, err := fc.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, ErrorMessage: string(respBody)}
	}

	var wrapper struct {
		File uploadedFile `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	return fc.waitActive(ctx, &wrapper.File)
}

// waitActive polls the file resource until processing finishes.
func (fc *FileCache) waitActive(ctx context.Context, f *uploadedFile) (*uploadedFile, error) {
	for f.State == "PROCESSING" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}

		url := fmt.Sprintf("%s/%s", fc.client.baseURL, f.Name)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-goog-api-key", fc.client.apiKey)

		resp, err := fc.client.http.Do(req)
		if err != nil {
			return nil, err
		}
		var updated uploadedFile
		err = json.NewDecoder(resp.Body).Decode(&updated)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode file state: %w", err)
		}
		f = &updated
	}
	if f.State == "FAILED" {
		return nil, fmt.Errorf("file processing failed: %s", f.Name)
	}
	return f, nil
}

// findCache returns the resource name of an existing cache with the display
// name, or "" when none exists.
func (fc *FileCache) findCache(ctx context.Context, display string) (string, error) {
	url := fc.client.baseURL + "/cachedContents"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", fc.client.apiKey)

	resp, err := fc.client.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, ErrorMessage: string(respBody)}
	}

	var listing struct {
		CachedContents []cachedContentResource `json:"cachedContents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", fmt.Errorf("decode cache listing: %w", err)
	}
	for _, cc := range listing.CachedContents {
		if cc.DisplayName == display {
			return cc.Name, nil
		}
	}
	return "", nil
}

// createCache registers server-side cached content over the uploaded file.
func (fc *FileCache) createCache(ctx context.Context, display string, f *uploadedFile) (string, error) {
	payload := map[string]any{
		"model":        "models/" + fc.client.model,
		"display_name": display,
		"ttl":          fmt.Sprintf("%ds", int(cacheTTL.Seconds())),
		"contents": []content{{
			Role: "user",
			Parts: []contentPart{{
				FileData: &fileData{FileURI: f.URI, MIMEType: f.MIMEType},
			}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fc.client.baseURL + "/cachedContents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", fc.client.apiKey)

	resp, err := fc.client.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, ErrorMessage: string(respBody)}
	}

	var created cachedContentResource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode cache response: %w", err)
	}
	return created.Name, nil
}

func (fc *FileCache) uploadBaseURL() string {
	return strings.Replace(fc.client.baseURL, "/v1beta", "/upload/v1beta", 1)
}
