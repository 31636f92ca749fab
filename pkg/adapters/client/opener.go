package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
)

// HTTPOpener visits the chosen content item, which is what counts as the impression.
type HTTPOpener struct {
	http *http.Client
}

func NewHTTPOpener(httpClient *http.Client) *HTTPOpener {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPOpener{http: httpClient}
}

func (o *HTTPOpener) Open(ctx context.Context, item domain.ContentItem) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("content item returned status %d", resp.StatusCode)
	}
	return nil
}
