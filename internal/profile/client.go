package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the directory has no such member.
var ErrNotFound = errors.New("profile: not found")

// Profile is the display snapshot stored alongside a rating when the
// submitter does not supply one.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// Client defines the contract for querying the member profile directory.
type Client interface {
	Lookup(ctx context.Context, id string) (Profile, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *log.Logger
}

// NewHTTPClient constructs a new HTTP-backed profile directory client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse profile url: %w", err)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// Lookup retrieves a member's display snapshot by id.
func (c *HTTPClient) Lookup(ctx context.Context, id string) (Profile, error) {
	rel := &url.URL{Path: "/profiles"}
	q := rel.Query()
	q.Set("id", id)
	rel.RawQuery = q.Encode()
	endpoint := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return Profile{}, fmt.Errorf("decode profile response: %w", err)
		}
		return convertToProfile(id, payload), nil
	case http.StatusNotFound:
		return Profile{}, ErrNotFound
	default:
		c.logger.Printf("profile: unexpected status %d for member %q", resp.StatusCode, id)
		return Profile{}, fmt.Errorf("profile: upstream returned %d", resp.StatusCode)
	}
}

type apiResponse struct {
	ID          *string `json:"id"`
	DisplayName *string `json:"displayName"`
	Username    *string `json:"username"`
	AvatarURL   *string `json:"avatarUrl"`
}

func convertToProfile(id string, payload apiResponse) Profile {
	p := Profile{ID: id}
	if payload.ID != nil && *payload.ID != "" {
		p.ID = *payload.ID
	}
	if payload.DisplayName != nil && *payload.DisplayName != "" {
		p.DisplayName = *payload.DisplayName
	} else if payload.Username != nil {
		p.DisplayName = *payload.Username
	}
	if payload.AvatarURL != nil {
		p.AvatarURL = *payload.AvatarURL
	}
	return p
}
