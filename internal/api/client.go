// Package api talks to the room server's REST endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/domain"
)

// maxBody bounds how much of a response body is read.
const maxBody = 64 << 10

// Credentials is what the server issues for a room.
type Credentials struct {
	Address   string `json:"address"`
	AccessKey string `json:"access_key"`
	QRString  string `json:"qr_string,omitempty"`
}

// Client is a room API client.
type Client struct {
	http     *http.Client
	resolver config.Resolver
	logger   *slog.Logger
}

// NewClient creates a client. A zero timeout means no client-side limit.
func NewClient(resolver config.Resolver, timeout time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		resolver: resolver,
		logger:   slog.Default().With("component", "api"),
	}
}

// CreateRoom asks the server to issue a new address and access key.
func (c *Client) CreateRoom(ctx context.Context) (Credentials, error) {
	endpoint, err := c.endpoint("api", "contract", "create")
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", domain.ErrRoomAPI, err)
	}
	creds, err := c.do(req)
	if err != nil {
		return Credentials{}, err
	}
	c.logger.Info("Room created", "address", creds.Address)
	return creds, nil
}

// LookupRoom fetches the credentials of an existing room. It returns
// domain.ErrRoomNotFound when the server does not know the address.
func (c *Client) LookupRoom(ctx context.Context, address string) (Credentials, error) {
	if address == "" {
		return Credentials{}, domain.ErrIncompleteCredentials
	}
	endpoint, err := c.endpoint("api", "contract", address)
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", domain.ErrRoomAPI, err)
	}
	return c.do(req)
}

func (c *Client) endpoint(elem ...string) (string, error) {
	base := c.resolver.BaseURL(config.ProtocolHTTP)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid api base url %q", domain.ErrRoomAPI, base)
	}
	return u.JoinPath(elem...).String(), nil
}

func (c *Client) do(req *http.Request) (Credentials, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", domain.ErrRoomAPI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: reading response: %v", domain.ErrRoomAPI, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && req.Method == http.MethodGet:
		return Credentials{}, domain.ErrRoomNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Credentials{}, fmt.Errorf("%w: %s %s returned %d", domain.ErrRoomAPI, req.Method, req.URL.Path, resp.StatusCode)
	}

	var creds Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: decoding response: %v", domain.ErrRoomAPI, err)
	}
	if creds.Address == "" || creds.AccessKey == "" {
		return Credentials{}, fmt.Errorf("%w: %w", domain.ErrRoomAPI, domain.ErrIncompleteCredentials)
	}
	return creds, nil
}
