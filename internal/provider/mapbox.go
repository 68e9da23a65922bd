package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"geocoding-enricher/internal/models"
)

const mapboxSuffix = ".json"

type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	Coordinates []any `json:"coordinates"`
	Geometry    *struct {
		Coordinates []any `json:"coordinates"`
	} `json:"geometry"`
	Center []any `json:"center"`
}

// MapboxClient queries a Mapbox-compatible forward geocoding endpoint.
type MapboxClient struct {
	client
	baseURL     *url.URL
	accessToken string
}

// NewMapboxClient validates baseURL and returns a client using accessToken.
func NewMapboxClient(baseURL, accessToken string, opts ...Option) (*MapboxClient, error) {
	u, err := parseEndpoint(baseURL)
	if err != nil {
		return nil, fmt.Errorf("mapbox url: %w", err)
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("mapbox key: %w", ErrConfigurationMissing)
	}
	return &MapboxClient{client: newClient("mapbox", opts...), baseURL: u, accessToken: accessToken}, nil
}

// Name implements GeocodeProvider.
func (c *MapboxClient) Name() string { return c.name }

// RequestURL returns <base>/<escaped one-line address>.json?access_token=<key>.
func (c *MapboxClient) RequestURL(q models.AddressQuery) string {
	u := *c.baseURL
	address := q.OneLine()

	rawBase := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + address + mapboxSuffix
	u.RawPath = rawBase + "/" + url.PathEscape(address) + mapboxSuffix

	params := u.Query()
	params.Set("access_token", c.accessToken)
	u.RawQuery = params.Encode()
	return u.String()
}

// Geocode implements GeocodeProvider.
func (c *MapboxClient) Geocode(ctx context.Context, q models.AddressQuery) (models.Coordinate, error) {
	body, err := c.get(ctx, c.RequestURL(q))
	if err != nil {
		return models.Coordinate{}, err
	}
	return parseMapboxResponse(body)
}

// parseMapboxResponse reads the first feature's [longitude, latitude] pair.
func parseMapboxResponse(body []byte) (models.Coordinate, error) {
	var resp mapboxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Coordinate{}, &ParseError{Provider: "mapbox", Err: err}
	}
	if len(resp.Features) == 0 {
		return models.Coordinate{}, nil
	}

	pair := resp.Features[0].position()
	if len(pair) != 2 {
		return models.Coordinate{}, nil
	}
	lon, okLon := pair[0].(float64)
	lat, okLat := pair[1].(float64)
	if !okLon || !okLat {
		return models.Coordinate{}, nil
	}

	return models.NewCoordinate(
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
	), nil
}

// position prefers the feature's own coordinates, then its geometry, then its center.
func (f mapboxFeature) position() []any {
	switch {
	case f.Coordinates != nil:
		return f.Coordinates
	case f.Geometry != nil && f.Geometry.Coordinates != nil:
		return f.Geometry.Coordinates
	default:
		return f.Center
	}
}
