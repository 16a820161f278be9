// Package geocode resolves GPS coordinates to place names through a
// Nominatim-compatible reverse geocoding endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"photoframe/internal/logging"
)

const (
	defaultBaseURL = "https://nominatim.openstreetmap.org"
	defaultTimeout = 10 * time.Second

	// Nominatim's usage policy requires an identifying User-Agent.
	userAgent = "photoframe/1.0"
)

// Location is a resolved place. City falls back through progressively
// coarser address components, so it may hold a town or county name.
type Location struct {
	City        string
	Country     string
	DisplayName string
}

// Geocoder resolves coordinates to a Location. A nil Location with a nil
// error means the coordinates fall outside any known place.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Location, error)
}

// Client talks to a Nominatim-compatible HTTP endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a reverse geocoding client. An empty baseURL selects
// the public Nominatim instance.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type nominatimResponse struct {
	Error       string `json:"error"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
		Country      string `json:"country"`
	} `json:"address"`
}

// Reverse looks up the place containing the given coordinates.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Location, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "14")
	q.Set("addressdetails", "1")

	reqURL := c.baseURL + "/reverse?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading geocode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode endpoint returned HTTP %d", resp.StatusCode)
	}

	var nr nominatimResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return nil, fmt.Errorf("parsing geocode response: %w", err)
	}

	// Open water and similar dead zones come back as a JSON error payload
	// with HTTP 200.
	if nr.Error != "" {
		logging.Debug("No place found for %.4f,%.4f: %s", lat, lon, nr.Error)
		return nil, nil
	}

	loc := &Location{
		City:        firstNonEmpty(nr.Address.City, nr.Address.Town, nr.Address.Village, nr.Address.Municipality, nr.Address.County),
		Country:     nr.Address.Country,
		DisplayName: nr.DisplayName,
	}
	return loc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
