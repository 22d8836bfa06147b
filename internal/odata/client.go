// Package odata reads entity collections from an OData service, one
// count request then fixed size pages.
package odata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dumacp/go-dataworker/internal/metrics"
	"github.com/dumacp/go-logs/pkg/logs"
)

// FetchPerRequest is the default page size.
const FetchPerRequest = 50

var ErrNoURI = errors.New("implementation error: OData URI must be set first")

type Client struct {
	mux      sync.RWMutex
	uri      string
	user     string
	password string
	pageSize int
	reader   Reader
}

type Option func(*Client)

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithReader replaces the HTTP reader.
func WithReader(r Reader) Option {
	return func(c *Client) {
		c.reader = r
	}
}

// WithHTTPClient reads through c, for instance an OAuth2 client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.reader = &HTTPReader{Client: c}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{pageSize: FetchPerRequest}
	for _, opt := range opts {
		opt(c)
	}
	if c.reader == nil {
		c.reader = &HTTPReader{}
	}
	return c
}

// SetURI sets the service URI used by the next operations.
func (c *Client) SetURI(uri string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.uri = uri
}

// SetAuthentication sets the basic auth credentials used by the next
// operations.
func (c *Client) SetAuthentication(user, password string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.user = user
	c.password = password
}

func (c *Client) URI() string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.uri
}

type settings struct {
	uri, user, password string
}

func (c *Client) settings() settings {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return settings{uri: c.uri, user: c.user, password: c.password}
}

// GetCount returns the number of entities matching query, query may be
// empty.
func (c *Client) GetCount(ctx context.Context, query string) (int, error) {
	return c.count(ctx, c.settings(), query)
}

func (c *Client) count(ctx context.Context, s settings, query string) (int, error) {
	if len(s.uri) == 0 {
		return 0, ErrNoURI
	}
	url := s.uri + "/$count"
	if len(query) > 0 {
		url += "?" + query
	}
	logs.LogBuild.Printf("odata count request: %s", url)
	body, err := c.reader.Read(ctx, &Request{
		URL:      url,
		Accept:   "text/plain",
		User:     s.user,
		Password: s.password,
	})
	if err == nil {
		var n int
		if n, err = parseCount(body); err == nil {
			metrics.RemoteRequests.WithLabelValues("count", metrics.Result(nil)).Inc()
			return n, nil
		}
	}
	metrics.RemoteRequests.WithLabelValues("count", metrics.Result(err)).Inc()
	return 0, fmt.Errorf("count %s: %w", url, err)
}

// GetList reads every entity matching query. The total is counted first
// and pages are requested until it is reached. Any failed page aborts
// the read without partial result.
func (c *Client) GetList(ctx context.Context, query string) ([]interface{}, error) {
	s := c.settings()
	total, err := c.count(ctx, s, query)
	if err != nil {
		return nil, err
	}
	result := make([]interface{}, 0, total)
	for skip := 0; skip < total; skip += c.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := fmt.Sprintf("%s?$skip=%d&$top=%d", s.uri, skip, c.pageSize)
		if len(query) > 0 {
			url += "&" + query
		}
		logs.LogBuild.Printf("odata page request: %s", url)
		body, err := c.reader.Read(ctx, &Request{
			URL:      url,
			User:     s.user,
			Password: s.password,
		})
		if err != nil {
			metrics.RemoteRequests.WithLabelValues("page", metrics.Result(err)).Inc()
			return nil, fmt.Errorf("page %s: %w", url, err)
		}
		page, err := parsePage(body)
		metrics.RemoteRequests.WithLabelValues("page", metrics.Result(err)).Inc()
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", url, err)
		}
		result = append(result, page...)
	}
	return result, nil
}
