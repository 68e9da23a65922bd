package models

import "time"

// FieldMapping is the per-run step configuration. It is loaded once and read-only afterwards.
type FieldMapping struct {
	StreetField    string
	CityField      string
	StateField     string
	ZipField       string
	LatitudeField  string
	LongitudeField string

	NominatimURL      string
	MapboxURL         string
	MapboxKey         string
	UseMapboxFallback bool
	PostNominatimWait time.Duration
	PostMapboxWait    time.Duration
}
