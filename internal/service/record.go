package service

import (
	"strings"

	"geocoding-enricher/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// extractAddress reads the address parts from rec. Street, city and state must all be present;
// a missing postal code becomes empty text.
func (s *GeoCodeService) extractAddress(rec models.Record, schema models.Schema) (models.AddressQuery, bool) {
	street, hasStreet := extractText(rec, schema, s.mapping.StreetField)
	city, hasCity := extractText(rec, schema, s.mapping.CityField)
	state, hasState := extractText(rec, schema, s.mapping.StateField)
	if !hasStreet || !hasCity || !hasState {
		return models.AddressQuery{}, false
	}
	zip, _ := extractText(rec, schema, s.mapping.ZipField)

	return models.AddressQuery{Street: street, City: city, State: state, PostalCode: zip}, true
}

// extractField returns the value stored under name, or nil when the name is blank, unknown to
// the schema, or beyond the record's storage.
func extractField(rec models.Record, schema models.Schema, name string) any {
	if strings.TrimSpace(name) == "" {
		log.Debug().Msg("field not provided in geocoder")
		return nil
	}
	return rec.Get(schema.IndexOf(name))
}

// extractText is extractField coerced to text. Values that cannot be stringified count as absent.
func extractText(rec models.Record, schema models.Schema, name string) (string, bool) {
	v := extractField(rec, schema, name)
	if v == nil {
		return "", false
	}
	text, err := cast.ToStringE(v)
	if err != nil {
		log.Warn().Err(err).Str("field", name).Msg("field value is not text, treating as absent")
		return "", false
	}
	return text, true
}

// hasCoordinates reports whether rec already carries a usable result: either coordinate
// field is set.
func hasCoordinates(rec models.Record, schema models.Schema, mapping models.FieldMapping) bool {
	lat := extractField(rec, schema, mapping.LatitudeField)
	lon := extractField(rec, schema, mapping.LongitudeField)
	return lat != nil || lon != nil
}

// mergeCoordinate writes coord into the latitude and longitude fields of a copy of rec.
// Without a latitude field nothing is written.
func (s *GeoCodeService) mergeCoordinate(coord models.Coordinate, rec models.Record, schema models.Schema) models.Record {
	out := rec.Resize(len(schema))

	latIdx := schema.IndexOf(s.mapping.LatitudeField)
	if latIdx < 0 {
		log.Warn().Str("field", s.mapping.LatitudeField).Msg("latitude field not provided for geocoder")
		return out
	}
	out[latIdx] = textOrNil(coord.Latitude)

	lonIdx := schema.IndexOf(s.mapping.LongitudeField)
	if lonIdx < 0 {
		log.Warn().Str("field", s.mapping.LongitudeField).Msg("longitude field not provided for geocoder")
		return out
	}
	out[lonIdx] = textOrNil(coord.Longitude)
	return out
}

func textOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func textAt(rec models.Record, schema models.Schema, name string) *string {
	text, ok := extractText(rec, schema, name)
	if !ok {
		return nil
	}
	return &text
}

func nilIfBlank(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
