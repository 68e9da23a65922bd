package handler

import (
	"net/http"
	"sync"

	"geocoding-enricher/internal/models"
	"geocoding-enricher/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// EnrichHandler geocodes batches of rows posted as JSON
type EnrichHandler struct {
	geocoder pipeline.Geocoder

	// one batch at a time, so provider pacing holds across requests
	mu sync.Mutex
}

// FieldSpec describes one column of a batch.
type FieldSpec struct {
	Name string           `json:"name" binding:"required"`
	Type models.FieldType `json:"type"`
}

// EnrichRequest is a batch of rows sharing one field list.
type EnrichRequest struct {
	Fields []FieldSpec `json:"fields" binding:"required,min=1,dive"`
	Rows   [][]any     `json:"rows"`
}

// EnrichResponse carries the rows with the coordinate fields appended.
type EnrichResponse struct {
	Fields []FieldSpec     `json:"fields"`
	Rows   []models.Record `json:"rows"`
	Stats  pipeline.Stats  `json:"stats"`
}

// NewEnrichHandler creates a new enrich handler
func NewEnrichHandler(g pipeline.Geocoder) *EnrichHandler {
	return &EnrichHandler{geocoder: g}
}

// Enrich handles POST /enrich requests
//
//	@Summary	Geocode a batch of rows
//	@Tags		geocode
//	@Accept		json
//	@Produce	json
//	@Param		request	body		EnrichRequest	true	"Rows to enrich"
//	@Success	200		{object}	EnrichResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	422		{object}	ErrorResponse
//	@Failure	500		{object}	ErrorResponse
//	@Router		/enrich [post]
func (h *EnrichHandler) Enrich(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	in := make(models.Schema, len(req.Fields))
	for i, f := range req.Fields {
		if f.Type == "" {
			f.Type = models.FieldTypeString
		}
		in[i] = models.Field{Name: f.Name, Type: f.Type}
	}

	out, err := h.geocoder.OutputSchema(in)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	rows := make([]models.Record, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = models.Record(r)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sink := &pipeline.SliceSink{}
	stats, err := pipeline.NewStep(h.geocoder, pipeline.NewSliceSource(in, rows), sink, pipeline.WithFeedbackSize(0)).
		Run(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("enrich request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	fields := make([]FieldSpec, len(out))
	for i, f := range out {
		fields[i] = FieldSpec{Name: f.Name, Type: f.Type}
	}
	enriched := sink.Rows
	if enriched == nil {
		enriched = []models.Record{}
	}

	c.JSON(http.StatusOK, EnrichResponse{Fields: fields, Rows: enriched, Stats: stats})
}
