package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	xhttp "SignalFeed/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_DecodesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":3,"symbol":"ETH","price":3000,"signal":"SELL","timestamp":"2024-05-01T10:05:00Z","additionalInfo":""}],"totalPages":3,"currentPage":2}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(xhttp.NewClient(xhttp.WithBaseURL(srv.URL)))
	res, err := f.FetchPage(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 2, res.CurrentPage)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "ETH", res.Items[0].Symbol)
	assert.Equal(t, "3000", res.Items[0].Price.String())
}

func TestHTTPFetcher_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"message":"Storage unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(xhttp.NewClient(xhttp.WithBaseURL(srv.URL))).FetchPage(context.Background(), 0, 10)
	require.Error(t, err)
	assert.Equal(t, "HTTP error! Status: 503 (Storage unavailable)", err.Error())
}

func TestHTTPFetcher_LogicalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"boom"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(xhttp.NewClient(xhttp.WithBaseURL(srv.URL))).FetchPage(context.Background(), 0, 10)
	assert.EqualError(t, err, "failed to fetch data: boom")
}
