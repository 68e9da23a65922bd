package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"geocoding-enricher/internal/models"
	"geocoding-enricher/internal/provider"

	"github.com/rs/zerolog/log"
)

// StepName is recorded as the origin of the fields the geocoder appends.
const StepName = "geocoder"

// GeoCodeService enriches records with coordinates from a primary provider and, when enabled,
// a fallback provider.
type GeoCodeService struct {
	mapping  models.FieldMapping
	primary  provider.GeocodeProvider
	fallback provider.GeocodeProvider
	pacer    Pacer
}

// Option configures a GeoCodeService.
type Option func(*GeoCodeService)

// WithPrimary sets the primary provider.
func WithPrimary(p provider.GeocodeProvider) Option {
	return func(s *GeoCodeService) {
		s.primary = p
	}
}

// WithFallback sets the fallback provider.
func WithFallback(p provider.GeocodeProvider) Option {
	return func(s *GeoCodeService) {
		s.fallback = p
	}
}

// WithPacer replaces the pacing implementation.
func WithPacer(p Pacer) Option {
	return func(s *GeoCodeService) {
		if p != nil {
			s.pacer = p
		}
	}
}

// WithProvidersFrom builds the Nominatim primary and, when the fallback is enabled, the Mapbox
// fallback from the mapping's endpoints. A provider whose endpoint is missing or malformed is
// logged once and left disabled for the whole run.
func WithProvidersFrom(mapping models.FieldMapping, opts ...provider.Option) Option {
	return func(s *GeoCodeService) {
		primary, err := provider.NewNominatimClient(mapping.NominatimURL, opts...)
		if err != nil {
			logProviderSetup("nominatim", err)
		} else {
			s.primary = primary
		}

		if !mapping.UseMapboxFallback {
			return
		}
		fallback, err := provider.NewMapboxClient(mapping.MapboxURL, mapping.MapboxKey, opts...)
		if err != nil {
			logProviderSetup("mapbox", err)
		} else {
			s.fallback = fallback
		}
	}
}

// NewGeoCodeService creates a geocoder for one run. The mapping is read-only afterwards.
func NewGeoCodeService(mapping models.FieldMapping, opts ...Option) *GeoCodeService {
	s := &GeoCodeService{mapping: mapping, pacer: SleepPacer{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OutputSchema returns the input schema with the latitude and longitude text fields appended.
func (s *GeoCodeService) OutputSchema(in models.Schema) (models.Schema, error) {
	lat := s.mapping.LatitudeField
	lon := s.mapping.LongitudeField

	if strings.TrimSpace(lat) == "" {
		return nil, errors.New("service: latitude field name is blank")
	}
	if strings.TrimSpace(lon) == "" {
		return nil, errors.New("service: longitude field name is blank")
	}
	if lat == lon {
		return nil, fmt.Errorf("service: latitude and longitude fields share the name %q", lat)
	}
	for _, name := range []string{lat, lon} {
		if in.IndexOf(name) >= 0 {
			return nil, fmt.Errorf("service: output field %q already exists in the input", name)
		}
	}

	return in.Append(
		models.Field{Name: lat, Type: models.FieldTypeString, Origin: StepName},
		models.Field{Name: lon, Type: models.FieldTypeString, Origin: StepName},
	), nil
}

// Geocode returns a copy of rec, widened to the schema, with coordinates merged in when a
// provider produced them. schema is the output schema. Provider, parsing and pacing failures
// are logged and never abort the record.
func (s *GeoCodeService) Geocode(ctx context.Context, rec models.Record, schema models.Schema) models.Record {
	out := rec.Resize(len(schema))

	query, ok := s.extractAddress(out, schema)
	if !ok {
		log.Debug().Msg("address incomplete, passing record through")
		return out
	}

	coord := s.lookup(ctx, s.primary, "nominatim", query)
	s.pace(ctx, s.mapping.PostNominatimWait, "nominatim")
	if coord.Usable() {
		out = s.mergeCoordinate(coord, out, schema)
	}

	if !s.mapping.UseMapboxFallback || hasCoordinates(out, schema, s.mapping) {
		return out
	}

	coord = s.lookup(ctx, s.fallback, "mapbox", query)
	s.pace(ctx, s.mapping.PostMapboxWait, "mapbox")
	if coord.Usable() {
		out = s.mergeCoordinate(coord, out, schema)
	}
	return out
}

// Lookup geocodes a bare address through the same primary/fallback flow as Geocode.
func (s *GeoCodeService) Lookup(ctx context.Context, q models.AddressQuery) models.Coordinate {
	lookup := *s
	lookup.mapping.StreetField = "street"
	lookup.mapping.CityField = "city"
	lookup.mapping.StateField = "state"
	lookup.mapping.ZipField = "postalcode"
	lookup.mapping.LatitudeField = "latitude"
	lookup.mapping.LongitudeField = "longitude"

	schema := models.Schema{
		{Name: "street", Type: models.FieldTypeString},
		{Name: "city", Type: models.FieldTypeString},
		{Name: "state", Type: models.FieldTypeString},
		{Name: "postalcode", Type: models.FieldTypeString},
		{Name: "latitude", Type: models.FieldTypeString, Origin: StepName},
		{Name: "longitude", Type: models.FieldTypeString, Origin: StepName},
	}
	rec := models.Record{nilIfBlank(q.Street), nilIfBlank(q.City), nilIfBlank(q.State), nilIfBlank(q.PostalCode)}
	rec = lookup.Geocode(ctx, rec, schema)

	return models.Coordinate{
		Latitude:  textAt(rec, schema, "latitude"),
		Longitude: textAt(rec, schema, "longitude"),
	}
}

func (s *GeoCodeService) lookup(ctx context.Context, p provider.GeocodeProvider, name string, q models.AddressQuery) models.Coordinate {
	if p == nil {
		log.Debug().Str("provider", name).Msg("no url provided in geocoder, skipping lookup")
		return models.Coordinate{}
	}

	coord, err := p.Geocode(ctx, q)
	if err != nil {
		log.Warn().Err(err).
			Str("provider", p.Name()).
			Str("kind", string(provider.Kind(err))).
			Str("street", q.Street).
			Str("city", q.City).
			Msg("failed to geocode address")
		return models.Coordinate{}
	}
	return coord
}

// pace blocks for d to keep the request rate under the provider's limit. It runs whether or
// not the preceding lookup made a call.
func (s *GeoCodeService) pace(ctx context.Context, d time.Duration, after string) {
	if d <= 0 {
		return
	}
	if err := s.pacer.Wait(ctx, d); err != nil {
		log.Warn().Err(err).
			Str("kind", string(provider.Kind(err))).
			Str("after", after).
			Dur("wait", d).
			Msg("failed to wait in geocoder")
	}
}

func logProviderSetup(name string, err error) {
	switch provider.Kind(err) {
	case provider.KindConfigurationMissing:
		log.Info().Str("provider", name).Msg("no url or key provided, provider disabled")
	default:
		log.Warn().Err(err).Str("provider", name).Msg("failed to parse provider url, provider disabled")
	}
}
