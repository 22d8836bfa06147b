package odata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collection struct {
	mux      sync.Mutex
	total    int
	requests []string
	failSkip int
	auth     [2]string
}

func (c *collection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mux.Lock()
	c.requests = append(c.requests, r.URL.RequestURI())
	if user, pass, ok := r.BasicAuth(); ok {
		c.auth = [2]string{user, pass}
	}
	c.mux.Unlock()

	switch r.URL.Path {
	case "/Products/$count":
		if r.Header.Get("Accept") != "text/plain" {
			http.Error(w, "bad accept", http.StatusNotAcceptable)
			return
		}
		fmt.Fprintf(w, "%d", c.total)
	case "/Products":
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		if c.failSkip > 0 && skip == c.failSkip {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		results := make([]interface{}, 0)
		for i := skip; i < skip+top && i < c.total; i++ {
			results = append(results, map[string]interface{}{"ID": i})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"d": map[string]interface{}{"results": results},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, c *collection) *Client {
	t.Helper()
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	cl := NewClient(WithHTTPClient(srv.Client()))
	cl.SetURI(srv.URL + "/Products")
	return cl
}

func TestGetListPages(t *testing.T) {
	coll := &collection{total: 120}
	cl := newTestClient(t, coll)

	list, err := cl.GetList(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 120)
	for i, e := range list {
		assert.Equal(t, float64(i), e.(map[string]interface{})["ID"])
	}
	assert.Equal(t, []string{
		"/Products/$count",
		"/Products?$skip=0&$top=50",
		"/Products?$skip=50&$top=50",
		"/Products?$skip=100&$top=50",
	}, coll.requests)
}

func TestGetListQuery(t *testing.T) {
	coll := &collection{total: 3}
	cl := newTestClient(t, coll)

	list, err := cl.GetList(context.Background(), "$filter=Price%20gt%205")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, []string{
		"/Products/$count?$filter=Price%20gt%205",
		"/Products?$skip=0&$top=50&$filter=Price%20gt%205",
	}, coll.requests)
}

func TestGetListEmptyCollection(t *testing.T) {
	coll := &collection{total: 0}
	cl := newTestClient(t, coll)

	list, err := cl.GetList(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Len(t, coll.requests, 1)
}

func TestGetListPageSize(t *testing.T) {
	coll := &collection{total: 25}
	srv := httptest.NewServer(coll)
	defer srv.Close()
	cl := NewClient(WithHTTPClient(srv.Client()), WithPageSize(10))
	cl.SetURI(srv.URL + "/Products")

	list, err := cl.GetList(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, list, 25)
	assert.Len(t, coll.requests, 4)
}

func TestGetListAbortsOnPageError(t *testing.T) {
	coll := &collection{total: 120, failSkip: 50}
	cl := newTestClient(t, coll)

	list, err := cl.GetList(context.Background(), "")
	assert.Nil(t, list)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Len(t, coll.requests, 3, "no page requested after the failure")
}

func TestGetCount(t *testing.T) {
	coll := &collection{total: 42}
	cl := newTestClient(t, coll)
	cl.SetAuthentication("user", "secret")

	n, err := cl.GetCount(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, [2]string{"user", "secret"}, coll.auth)
}

type countingReader struct {
	calls int
}

func (r *countingReader) Read(context.Context, *Request) ([]byte, error) {
	r.calls++
	return []byte("1"), nil
}

func TestNoURI(t *testing.T) {
	r := &countingReader{}
	cl := NewClient(WithReader(r))

	_, err := cl.GetCount(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoURI)
	_, err = cl.GetList(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoURI)
	assert.Zero(t, r.calls)
	assert.Empty(t, cl.URI())

	cl.SetURI("http://example/Products")
	assert.Equal(t, "http://example/Products", cl.URI())
	_, err = cl.GetCount(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
}

func TestParsePage(t *testing.T) {
	bodies := []string{
		`{"d":{"results":[{"a":1}]}}`,
		`{"d":[{"a":1}]}`,
		`{"value":[{"a":1}]}`,
		`[{"a":1}]`,
	}
	for _, b := range bodies {
		page, err := parsePage([]byte(b))
		require.NoError(t, err, b)
		assert.Equal(t, []interface{}{map[string]interface{}{"a": 1.0}}, page, b)
	}
	_, err := parsePage([]byte(`{"error":"x"}`))
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	for body, want := range map[string]int{"12": 12, " 7\n": 7, "\ufeff3": 3, "4.0": 4} {
		n, err := parseCount([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, n)
	}
	_, err := parseCount([]byte("many"))
	assert.Error(t, err)
}
