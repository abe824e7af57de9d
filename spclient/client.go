package spclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/pkg/errors"
)

var (
	// ErrTicketInvalid is every non-success validate outcome. A failed
	// ticket must never be retried; it is already consumed or was never
	// valid.
	ErrTicketInvalid = errors.New("ticket rejected by authentication service")

	ErrNotLoggedIn = errors.New("no central session")
)

// Client is the server-to-server side of a service provider: it exchanges
// tickets for validated principals and probes the central session.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the transport (primarily for testing).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient builds a client for the authentication service at baseURL
// (scheme and host, no trailing slash).
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("[NewClient] baseURL must be an absolute http(s) URL")
	}

	c := &Client{
		baseURL:    u.Scheme + "://" + u.Host + u.Path,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// LoginURL is where the route guard sends an unauthenticated browser:
// the central login page, carrying this SP's callback URL as service.
func (c *Client) LoginURL(service string) string {
	return c.baseURL + "/auth/login?service=" + url.QueryEscape(service)
}

type validateResponse struct {
	Success bool                `json:"success"`
	User    *principals.Profile `json:"user"`
}

// Validate exchanges a ticket for the principal's public profile. The
// service URL must be the one the browser was sent back to.
func (c *Client) Validate(ticket, service string) (*principals.Profile, error) {
	payload, err := json.Marshal(map[string]string{"ticket": ticket, "service": service})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Validate] marshal request")
	}

	resp, err := c.httpClient.Post(c.baseURL+"/auth/validate", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Validate] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[Client.Validate] unexpected status %d", resp.StatusCode)
	}

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "[Client.Validate] decode response")
	}
	if !body.Success || body.User == nil {
		return nil, ErrTicketInvalid
	}
	return body.User, nil
}

type checkSessionResponse struct {
	LoggedIn bool                `json:"loggedIn"`
	User     *principals.Profile `json:"user"`
}

// CheckSession asks whether the browser behind the given cookies already
// holds a central session, enabling silent SSO without a login round-trip.
// The cookies come from the incoming browser request; the central session
// cookie is shared across SP origins.
func (c *Client) CheckSession(cookies []*http.Cookie) (*principals.Profile, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/auth/check-session", nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.CheckSession] build request")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.CheckSession] get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[Client.CheckSession] unexpected status %d", resp.StatusCode)
	}

	var body checkSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "[Client.CheckSession] decode response")
	}
	if !body.LoggedIn || body.User == nil {
		return nil, ErrNotLoggedIn
	}
	return body.User, nil
}
