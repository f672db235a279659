package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Place is a reverse-geocoding hit.
type Place struct {
	DisplayName string
	Address     map[string]string
}

// Provider performs one reverse lookup. A nil Place with a nil error means
// the provider knows nothing at that position.
type Provider interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}

// Nominatim queries an OpenStreetMap Nominatim instance.
type Nominatim struct {
	Endpoint  string
	UserAgent string
	Language  string
	Client    *http.Client
}

func NewNominatim(endpoint, userAgent, language string, timeout time.Duration) *Nominatim {
	return &Nominatim{
		Endpoint:  strings.TrimRight(endpoint, "/"),
		UserAgent: userAgent,
		Language:  language,
		Client:    &http.Client{Timeout: timeout},
	}
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("addressdetails", "1")
	if n.Language != "" {
		q.Set("accept-language", n.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.Endpoint+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", n.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read nominatim response: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	var out nominatimResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse nominatim response: %w", err)
	}
	if out.Error != "" {
		return nil, nil
	}
	if out.DisplayName == "" && len(out.Address) == 0 {
		return nil, nil
	}
	return &Place{DisplayName: out.DisplayName, Address: out.Address}, nil
}
