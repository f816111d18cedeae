package pocketbase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// FileURL builds the public URL of a stored file. It returns "" when any
// part is missing.
func (c *Client) FileURL(collectionID, recordID, filename string) string {
	if collectionID == "" || recordID == "" || filename == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/files/%s/%s/%s",
		c.baseURL,
		url.PathEscape(collectionID),
		url.PathEscape(recordID),
		url.PathEscape(filename),
	)
}

// OpenFile starts downloading a stored file. The caller must close the
// returned body. size is -1 when the backend does not report a length.
func (c *Client) OpenFile(ctx context.Context, collectionID, recordID, filename string) (body io.ReadCloser, size int64, err error) {
	u := c.FileURL(collectionID, recordID, filename)
	if u == "" {
		return nil, 0, fmt.Errorf("file reference is incomplete")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building file request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", token)
	}

	// Downloads have no client timeout; ctx cancels them.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("downloading %s: %w", filename, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, 0, fmt.Errorf("downloading %s: %w", filename, decodeError(resp))
	}
	return resp.Body, resp.ContentLength, nil
}
