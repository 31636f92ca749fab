package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

// Client talks to the gateway HTTP boundary.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	var hc http.Client
	if httpClient != nil {
		hc = *httpClient
	} else {
		hc.Timeout = 10 * time.Second
	}
	// The resolve response is the redirect itself; do not follow it.
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &hc}
}

func (c *Client) Issue(ctx context.Context, originalURL string) (*domain.IssuedLink, error) {
	body, err := json.Marshal(map[string]string{"originalUrl": originalURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/links", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issue link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("issue link", resp)
	}
	var issued domain.IssuedLink
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return nil, fmt.Errorf("decode issued link: %w", err)
	}
	return &issued, nil
}

func (c *Client) StartHandshake(ctx context.Context, token string) error {
	endpoint := c.baseURL + "/links/" + url.PathEscape(token) + "/handshake?action=start"
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("start handshake: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("start handshake", resp)
	}
	return nil
}

func (c *Client) Resolve(ctx context.Context, token string) (string, error) {
	resp, err := c.get(ctx, c.baseURL+"/links/"+url.PathEscape(token))
	if err != nil {
		return "", fmt.Errorf("resolve link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return "", statusError("resolve link", resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("resolve link: redirect without location")
	}
	return location, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// statusError maps boundary status codes back onto the domain sentinels.
func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrValidation, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}
}

var (
	_ ports.RedirectResolver = (*Client)(nil)
	_ ports.LinkIssuer       = (*Client)(nil)
)
