package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"geocoding-enricher/internal/models"
)

// NominatimClient queries a Nominatim-compatible structured search endpoint.
type NominatimClient struct {
	client
	baseURL *url.URL
}

// NewNominatimClient validates baseURL and returns a client for it.
func NewNominatimClient(baseURL string, opts ...Option) (*NominatimClient, error) {
	u, err := parseEndpoint(baseURL)
	if err != nil {
		return nil, fmt.Errorf("nominatim url: %w", err)
	}
	return &NominatimClient{client: newClient("nominatim", opts...), baseURL: u}, nil
}

// Name implements GeocodeProvider.
func (c *NominatimClient) Name() string { return c.name }

// RequestURL returns the structured search URL for q. Query parameters already on the
// base URL are kept.
func (c *NominatimClient) RequestURL(q models.AddressQuery) string {
	u := *c.baseURL
	params := u.Query()
	params.Add("city", q.City)
	params.Add("street", q.Street)
	params.Add("state", q.State)
	params.Add("postalcode", q.PostalCode)
	u.RawQuery = params.Encode()
	return u.String()
}

// Geocode implements GeocodeProvider.
func (c *NominatimClient) Geocode(ctx context.Context, q models.AddressQuery) (models.Coordinate, error) {
	body, err := c.get(ctx, c.RequestURL(q))
	if err != nil {
		return models.Coordinate{}, err
	}
	return parseNominatimResponse(body)
}

// parseNominatimResponse accepts a single place object or an array of places.
// Only the first place of an array is used; an empty array is no result.
func parseNominatimResponse(body []byte) (models.Coordinate, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return models.Coordinate{}, &ParseError{Provider: "nominatim", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.Coordinate{}, &ParseError{Provider: "nominatim", Err: errors.New("unexpected data after JSON value")}
	}

	switch v := payload.(type) {
	case map[string]any:
		return coordinateFromPlace(v)
	case []any:
		if len(v) == 0 {
			return models.Coordinate{}, nil
		}
		place, ok := v[0].(map[string]any)
		if !ok {
			return models.Coordinate{}, &ParseError{Provider: "nominatim", Err: errors.New("first result is not an object")}
		}
		return coordinateFromPlace(place)
	default:
		return models.Coordinate{}, &ParseError{Provider: "nominatim", Err: fmt.Errorf("unexpected JSON value %T", payload)}
	}
}

func coordinateFromPlace(place map[string]any) (models.Coordinate, error) {
	lat, err := textValue(place, "lat")
	if err != nil {
		return models.Coordinate{}, err
	}
	lon, err := textValue(place, "lon")
	if err != nil {
		return models.Coordinate{}, err
	}
	return models.Coordinate{Latitude: lat, Longitude: lon}, nil
}

// textValue returns the verbatim text of place[key]. Numbers keep their literal form.
func textValue(place map[string]any, key string) (*string, error) {
	switch v := place[key].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case json.Number:
		s := v.String()
		return &s, nil
	default:
		return nil, &ParseError{Provider: "nominatim", Err: fmt.Errorf("%q is %T, want text", key, v)}
	}
}
