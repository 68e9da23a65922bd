package models

import "strings"

// AddressQuery holds the address parts extracted from a single record.
type AddressQuery struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalcode"`
}

// OneLine joins the non-empty address parts with single spaces.
func (q AddressQuery) OneLine() string {
	parts := []string{q.Street, q.City, q.State, q.PostalCode}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// Coordinate is a provider result kept as text so that "no result" stays distinct from 0,0.
// A nil side means the provider did not return it.
type Coordinate struct {
	Latitude  *string `json:"latitude"`
	Longitude *string `json:"longitude"`
}

// NewCoordinate builds a Coordinate with both sides present.
func NewCoordinate(lat, lon string) Coordinate {
	return Coordinate{Latitude: &lat, Longitude: &lon}
}

// Usable reports whether at least one side of the coordinate is present.
func (c Coordinate) Usable() bool {
	return c.Latitude != nil || c.Longitude != nil
}
