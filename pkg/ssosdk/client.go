package ssosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Backend endpoints.
const (
	PathConfig   = "/api/sso/config"
	PathExchange = "/api/sso/exchange"
	PathValidate = "/api/sso/validate"
)

// maxBodySize caps how much of a backend response is read.
const maxBodySize = 1 << 20

// Client talks to the backend over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a backend client with a pooled, non-shared transport.
func NewClient(baseURL string) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = 10 * time.Second

	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: hc,
	}
}

var _ Backend = (*Client)(nil)

// Discover fetches the provider configuration. Any failure is reported as
// ErrConfigUnavailable.
func (c *Client) Discover(ctx context.Context, variant DiscoveryVariant) (ProviderConfig, error) {
	endpoint := c.BaseURL + PathConfig
	if variant == DiscoverySilent {
		endpoint += "?" + url.Values{"mode": {"silent"}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	var pc ProviderConfig
	status, body, err := c.do(req)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}
	if status != http.StatusOK {
		return ProviderConfig{}, fmt.Errorf("%w: status %d: %s", ErrConfigUnavailable, status, errorMessage(body))
	}
	if err := json.Unmarshal(body, &pc); err != nil {
		return ProviderConfig{}, fmt.Errorf("%w: decode: %w", ErrConfigUnavailable, err)
	}
	if err := pc.validate(); err != nil {
		return ProviderConfig{}, err
	}
	return pc, nil
}

// Exchange posts the code, redirect URI and verifier. It never retries:
// codes are single use.
func (c *Client) Exchange(ctx context.Context, in ExchangeRequest) (ExchangeResponse, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return ExchangeResponse{}, &ExchangeError{Kind: ExchangeInvalidResponse, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+PathExchange, bytes.NewReader(payload))
	if err != nil {
		return ExchangeResponse{}, &ExchangeError{Kind: ExchangeNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return ExchangeResponse{}, &ExchangeError{Kind: ExchangeNetworkError, Err: err}
	}
	if status < 200 || status > 299 {
		return ExchangeResponse{}, &ExchangeError{
			Kind:       ExchangeProviderRejected,
			StatusCode: status,
			Message:    errorMessage(body),
		}
	}

	var out ExchangeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ExchangeResponse{}, &ExchangeError{Kind: ExchangeInvalidResponse, StatusCode: status, Err: err}
	}
	if out.Token == "" {
		return ExchangeResponse{}, &ExchangeError{
			Kind:       ExchangeInvalidResponse,
			StatusCode: status,
			Err:        errors.New("response carries no token"),
		}
	}
	return out, nil
}

// CheckValidity calls the validity endpoint with token as bearer. A 401 is
// a definitive answer (not valid); other failures are returned as errors
// and must not be read as invalidity.
func (c *Client) CheckValidity(ctx context.Context, token string) (ValidityResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+PathValidate, nil)
	if err != nil {
		return ValidityResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return ValidityResponse{}, fmt.Errorf("validity check failed: %w", err)
	}

	switch status {
	case http.StatusOK:
		var out ValidityResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return ValidityResponse{}, fmt.Errorf("failed to decode validity response: %w", err)
		}
		return out, nil
	case http.StatusUnauthorized:
		return ValidityResponse{Valid: false}, nil
	default:
		return ValidityResponse{}, fmt.Errorf("validity check failed: status %d: %s", status, errorMessage(body))
	}
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// errorMessage extracts the backend's message from an error body: message,
// then error_description, then error, then the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, s := range []string{e.Message, e.ErrorDescription, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}
