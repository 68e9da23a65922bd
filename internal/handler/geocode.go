package handler

import (
	"context"
	"net/http"
	"strings"

	"geocoding-enricher/internal/models"

	"github.com/gin-gonic/gin"
)

// GeoCodeHandler handles single address lookups
type GeoCodeHandler struct {
	service GeoCodeService
}

// GeoCodeService interface for dependency injection
type GeoCodeService interface {
	Lookup(context.Context, models.AddressQuery) models.Coordinate
}

// GeocodeResponse is the result of a single lookup. Coordinates are null when no provider
// found the address.
type GeocodeResponse struct {
	Latitude  *string `json:"latitude"`
	Longitude *string `json:"longitude"`
	Geocoded  bool    `json:"geocoded"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewGeoCodeHandler creates a new geocode handler
func NewGeoCodeHandler(svc GeoCodeService) *GeoCodeHandler {
	return &GeoCodeHandler{service: svc}
}

// GeoCode handles GET /geocode requests
//
//	@Summary	Geocode one address
//	@Tags		geocode
//	@Produce	json
//	@Param		street		query		string	true	"Street line"
//	@Param		city		query		string	true	"City"
//	@Param		state		query		string	true	"State"
//	@Param		postalcode	query		string	false	"Postal code"
//	@Success	200			{object}	GeocodeResponse
//	@Failure	400			{object}	ErrorResponse
//	@Router		/geocode [get]
func (h *GeoCodeHandler) GeoCode(c *gin.Context) {
	query := models.AddressQuery{
		Street:     strings.TrimSpace(c.Query("street")),
		City:       strings.TrimSpace(c.Query("city")),
		State:      strings.TrimSpace(c.Query("state")),
		PostalCode: strings.TrimSpace(c.Query("postalcode")),
	}
	if query.Street == "" || query.City == "" || query.State == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required query parameters 'street', 'city' and 'state'"})
		return
	}

	coord := h.service.Lookup(c.Request.Context(), query)

	c.JSON(http.StatusOK, GeocodeResponse{
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
		Geocoded:  coord.Usable(),
	})
}
