package pocketbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListOptions are the query parameters accepted by the records list endpoint.
type ListOptions struct {
	Page    int
	PerPage int
	Sort    string
	Filter  string
	Expand  string
	Fields  string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(o.PerPage))
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	if o.Filter != "" {
		q.Set("filter", o.Filter)
	}
	if o.Expand != "" {
		q.Set("expand", o.Expand)
	}
	if o.Fields != "" {
		q.Set("fields", o.Fields)
	}
	return q
}

// ListResult is one page of records.
type ListResult[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

func recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

func recordPath(collection, id string) string {
	return recordsPath(collection) + "/" + url.PathEscape(id)
}

// List fetches one page of records from collection.
func List[T any](ctx context.Context, c *Client, collection string, opts ListOptions) (*ListResult[T], error) {
	var out ListResult[T]
	if err := c.doJSON(ctx, http.MethodGet, recordsPath(collection), opts.values(), nil, &out); err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	return &out, nil
}

// FullList walks every page of collection. opts.Page is ignored.
func FullList[T any](ctx context.Context, c *Client, collection string, opts ListOptions) ([]T, error) {
	if opts.PerPage <= 0 {
		opts.PerPage = 200
	}

	var all []T
	for page := 1; ; page++ {
		opts.Page = page
		res, err := List[T](ctx, c, collection, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Items...)
		if page >= res.TotalPages || len(res.Items) == 0 {
			return all, nil
		}
	}
}

// Get fetches a single record. expand may be empty.
func Get[T any](ctx context.Context, c *Client, collection, id, expand string) (*T, error) {
	q := url.Values{}
	if expand != "" {
		q.Set("expand", expand)
	}
	var out T
	if err := c.doJSON(ctx, http.MethodGet, recordPath(collection, id), q, nil, &out); err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return &out, nil
}

// Create inserts a record. body is either a *Multipart form (when files are
// attached) or any JSON-encodable value.
func Create[T any](ctx context.Context, c *Client, collection string, body any) (*T, error) {
	var out T
	if err := c.send(ctx, http.MethodPost, recordsPath(collection), body, &out); err != nil {
		return nil, fmt.Errorf("creating %s record: %w", collection, err)
	}
	return &out, nil
}

// Update patches a record and returns the stored result.
func Update[T any](ctx context.Context, c *Client, collection, id string, body any) (*T, error) {
	var out T
	if err := c.send(ctx, http.MethodPatch, recordPath(collection, id), body, &out); err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	return &out, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, recordPath(collection, id), nil, nil, nil); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	if form, ok := body.(*Multipart); ok {
		reader, contentType := form.encode()
		defer reader.Close()
		return c.do(ctx, request{
			method:      method,
			path:        path,
			body:        reader,
			contentType: contentType,
		}, out)
	}
	return c.doJSON(ctx, method, path, nil, body, out)
}
