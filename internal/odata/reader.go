package odata

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Request is one read against the remote service.
type Request struct {
	URL      string
	Accept   string
	User     string
	Password string
}

// Reader performs one paged read and returns the raw body.
type Reader interface {
	Read(ctx context.Context, req *Request) ([]byte, error)
}

// StatusError is returned for non 2xx responses.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("odata: status code %d: %s", e.Code, e.Body)
}

type HTTPReader struct {
	Client *http.Client
}

func (h *HTTPReader) Read(ctx context.Context, req *Request) ([]byte, error) {
	c := h.Client
	if c == nil {
		c = http.DefaultClient
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	accept := req.Accept
	if len(accept) == 0 {
		accept = "application/json"
	}
	r.Header.Set("Accept", accept)
	if len(req.User) > 0 || len(req.Password) > 0 {
		r.SetBasicAuth(req.User, req.Password)
	}
	resp, err := c.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return body, nil
}
