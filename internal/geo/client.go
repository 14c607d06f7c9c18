package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kinship-app/backend/internal/models"
)

// Lookuper resolves an IP address to a coarse location. Implementations
// must be safe to call concurrently.
type Lookuper interface {
	Lookup(ctx context.Context, ip string) (*models.LocationSnapshot, error)
}

// Client queries an ip-api style JSON endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a geolocation client. baseURL defaults to ip-api.com.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://ip-api.com/json"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type apiResponse struct {
	Status     string  `json:"status"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Lookup resolves ip to a location snapshot. Private and unparsable
// addresses return an empty snapshot rather than an error so callers can
// treat lookup as best-effort.
func (c *Client) Lookup(ctx context.Context, ip string) (*models.LocationSnapshot, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() {
		return &models.LocationSnapshot{IP: ip}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, ip), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Status != "success" {
		return &models.LocationSnapshot{IP: ip}, nil
	}

	return &models.LocationSnapshot{
		IP:      ip,
		Country: body.Country,
		State:   body.RegionName,
		City:    body.City,
		Lat:     body.Lat,
		Lon:     body.Lon,
	}, nil
}
