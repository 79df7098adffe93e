package localrt

import (
	"context"
	"net/http"

	"github.com/dagrule/engine/internal/leaf"
)

// HTTPClient implements leaf.HTTPGetter over net/http, the plain transport
// DownloadedFile streams its size-limited hash through.
type HTTPClient struct {
	Client *http.Client
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{Client: &http.Client{}}
}

func (c *HTTPClient) Get(ctx context.Context, url string) (int, leaf.ReadCloserLen, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}
