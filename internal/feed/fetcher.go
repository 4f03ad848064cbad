package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"SignalFeed/internal/domain/models"
	xhttp "SignalFeed/pkg/http"
)

// HTTPFetcher reads pages from GET /api/data.
type HTTPFetcher struct {
	client *xhttp.Client
	path   string
}

func NewHTTPFetcher(client *xhttp.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client, path: "/api/data"}
}

func (f *HTTPFetcher) FetchPage(ctx context.Context, page, limit int) (PageResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var resp models.PageResponse
	if err := f.client.GetJSON(ctx, f.path, q, &resp); err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			return PageResult{}, fmt.Errorf("HTTP error! Status: %d%s", se.Code, serverMessage(se.Body))
		}
		return PageResult{}, err
	}
	if !resp.Success {
		return PageResult{}, fmt.Errorf("failed to fetch data: %s", resp.Message)
	}
	return PageResult{
		Items:       resp.Data,
		TotalPages:  resp.TotalPages,
		CurrentPage: resp.CurrentPage,
	}, nil
}

func serverMessage(body string) string {
	var env xhttp.Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Message == "" {
		return ""
	}
	return " (" + env.Message + ")"
}
