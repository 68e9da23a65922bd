package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geocoding-enricher/internal/models"
	"geocoding-enricher/internal/provider"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProvider is a mock implementation of the GeocodeProvider interface
type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string { return m.name }

// Geocode implements provider.GeocodeProvider.
func (m *MockProvider) Geocode(ctx context.Context, q models.AddressQuery) (models.Coordinate, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(models.Coordinate), args.Error(1)
}

// recordingPacer records waits instead of sleeping.
type recordingPacer struct {
	waits []time.Duration
}

func (p *recordingPacer) Wait(_ context.Context, d time.Duration) error {
	p.waits = append(p.waits, d)
	return nil
}

var inputSchema = models.Schema{
	{Name: "id", Type: models.FieldTypeInteger},
	{Name: "addr", Type: models.FieldTypeString},
	{Name: "town", Type: models.FieldTypeString},
	{Name: "region", Type: models.FieldTypeString},
	{Name: "zip", Type: models.FieldTypeInteger},
}

var springfield = models.AddressQuery{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701"}

func testMapping() models.FieldMapping {
	return models.FieldMapping{
		StreetField:       "addr",
		CityField:         "town",
		StateField:        "region",
		ZipField:          "zip",
		LatitudeField:     "lat",
		LongitudeField:    "lon",
		UseMapboxFallback: true,
		PostNominatimWait: time.Second,
		PostMapboxWait:    2 * time.Second,
	}
}

func outputSchema(t *testing.T, s *GeoCodeService) models.Schema {
	t.Helper()
	schema, err := s.OutputSchema(inputSchema)
	require.NoError(t, err)
	return schema
}

func TestGeoCodeService_Geocode(t *testing.T) {
	primaryHit := models.NewCoordinate("39.8", "-89.6")
	fallbackHit := models.NewCoordinate("39.78", "-89.65")

	tests := []struct {
		name            string
		record          models.Record
		fallbackEnabled bool
		primaryResult   *models.Coordinate
		primaryError    error
		fallbackResult  *models.Coordinate
		fallbackError   error
		expected        models.Record
		expectedWaits   []time.Duration
	}{
		{
			name:            "missing street skips geocoding",
			record:          models.Record{int64(1), nil, "Springfield", "IL", int64(62701)},
			fallbackEnabled: true,
			expected:        models.Record{int64(1), nil, "Springfield", "IL", int64(62701), nil, nil},
		},
		{
			name:            "missing city skips geocoding",
			record:          models.Record{int64(1), "1 Main St", nil, "IL", int64(62701)},
			fallbackEnabled: true,
			expected:        models.Record{int64(1), "1 Main St", nil, "IL", int64(62701), nil, nil},
		},
		{
			name:            "missing state skips geocoding",
			record:          models.Record{int64(1), "1 Main St", "Springfield", nil, int64(62701)},
			fallbackEnabled: true,
			expected:        models.Record{int64(1), "1 Main St", "Springfield", nil, int64(62701), nil, nil},
		},
		{
			name:            "primary result is merged and fallback skipped",
			record:          models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)},
			fallbackEnabled: true,
			primaryResult:   &primaryHit,
			expected:        models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701), "39.8", "-89.6"},
			expectedWaits:   []time.Duration{time.Second},
		},
		{
			name:            "primary provider error falls back",
			record:          models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)},
			fallbackEnabled: true,
			primaryError:    &provider.ProviderError{Provider: "nominatim", StatusCode: 500, Status: "500 Internal Server Error"},
			fallbackResult:  &fallbackHit,
			expected:        models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701), "39.78", "-89.65"},
			expectedWaits:   []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:            "primary no result falls back",
			record:          models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)},
			fallbackEnabled: true,
			primaryResult:   &models.Coordinate{},
			fallbackResult:  &fallbackHit,
			expected:        models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701), "39.78", "-89.65"},
			expectedWaits:   []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:            "fallback disabled leaves coordinates unset",
			record:          models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)},
			fallbackEnabled: false,
			primaryResult:   &models.Coordinate{},
			expected:        models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701), nil, nil},
			expectedWaits:   []time.Duration{time.Second},
		},
		{
			name:            "both providers fail",
			record:          models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)},
			fallbackEnabled: true,
			primaryError:    &provider.ParseError{Provider: "nominatim", Err: io.ErrUnexpectedEOF},
			fallbackError:   &provider.ProviderError{Provider: "mapbox", StatusCode: 401, Status: "401 Unauthorized"},
			expected:        models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701), nil, nil},
			expectedWaits:   []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:            "latitude only primary result counts as geocoded",
			record:          models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)},
			fallbackEnabled: true,
			primaryResult:   &models.Coordinate{Latitude: strPtr("39.8")},
			expected:        models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701), "39.8", nil},
			expectedWaits:   []time.Duration{time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			primary := &MockProvider{name: "nominatim"}
			fallback := &MockProvider{name: "mapbox"}
			if tt.primaryResult != nil || tt.primaryError != nil {
				result := models.Coordinate{}
				if tt.primaryResult != nil {
					result = *tt.primaryResult
				}
				primary.On("Geocode", mock.Anything, springfield).Return(result, tt.primaryError).Once()
			}
			if tt.fallbackResult != nil || tt.fallbackError != nil {
				result := models.Coordinate{}
				if tt.fallbackResult != nil {
					result = *tt.fallbackResult
				}
				fallback.On("Geocode", mock.Anything, springfield).Return(result, tt.fallbackError).Once()
			}

			mapping := testMapping()
			mapping.UseMapboxFallback = tt.fallbackEnabled
			pacer := &recordingPacer{}
			svc := NewGeoCodeService(mapping, WithPrimary(primary), WithFallback(fallback), WithPacer(pacer))
			schema := outputSchema(t, svc)

			// Execute
			result := svc.Geocode(context.Background(), tt.record, schema)

			// Assert
			if diff := cmp.Diff(tt.expected, result); diff != "" {
				t.Errorf("Geocode() mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.expectedWaits, pacer.waits)
			primary.AssertExpectations(t)
			fallback.AssertExpectations(t)
			if tt.fallbackResult == nil && tt.fallbackError == nil {
				fallback.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
			}
		})
	}
}

// A complete primary result stops the lookup. An "already geocoded" check of latitude set and
// longitude unset would report such a record as not geocoded and query the fallback as well.
func TestGeoCodeService_CompletePrimaryResultDoesNotQueryFallback(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	fallback := &MockProvider{name: "mapbox"}
	primary.On("Geocode", mock.Anything, springfield).Return(models.NewCoordinate("39.8", "-89.6"), nil).Once()

	svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithFallback(fallback), WithPacer(&recordingPacer{}))
	schema := outputSchema(t, svc)

	result := svc.Geocode(context.Background(), models.Record{int64(7), "1 Main St", "Springfield", "IL", "62701"}, schema)

	assert.Equal(t, "39.8", result[schema.IndexOf("lat")])
	assert.Equal(t, "-89.6", result[schema.IndexOf("lon")])
	fallback.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestGeoCodeService_PostalCodeCoercion(t *testing.T) {
	tests := []struct {
		name     string
		zip      any
		expected string
	}{
		{name: "absent postal code becomes empty text", zip: nil, expected: ""},
		{name: "integer postal code is stringified", zip: int64(62701), expected: "62701"},
		{name: "float postal code is stringified", zip: float64(62701), expected: "62701"},
		{name: "text postal code is kept", zip: "62701-1234", expected: "62701-1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &MockProvider{name: "nominatim"}
			want := models.AddressQuery{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: tt.expected}
			primary.On("Geocode", mock.Anything, want).Return(models.NewCoordinate("39.8", "-89.6"), nil).Once()

			svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithPacer(&recordingPacer{}))
			schema := outputSchema(t, svc)

			svc.Geocode(context.Background(), models.Record{int64(1), "1 Main St", "Springfield", "IL", tt.zip}, schema)

			primary.AssertExpectations(t)
		})
	}
}

func TestGeoCodeService_UnconfiguredPrimaryStillPaces(t *testing.T) {
	fallback := &MockProvider{name: "mapbox"}
	fallback.On("Geocode", mock.Anything, springfield).Return(models.NewCoordinate("39.78", "-89.65"), nil).Once()

	pacer := &recordingPacer{}
	svc := NewGeoCodeService(testMapping(), WithFallback(fallback), WithPacer(pacer))
	schema := outputSchema(t, svc)

	result := svc.Geocode(context.Background(), models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)}, schema)

	assert.Equal(t, "39.78", result[5])
	assert.Equal(t, "-89.65", result[6])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pacer.waits)
	fallback.AssertExpectations(t)
}

func TestGeoCodeService_UnconfiguredFallbackIsSkipped(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	primary.On("Geocode", mock.Anything, springfield).Return(models.Coordinate{}, nil).Once()

	pacer := &recordingPacer{}
	svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithPacer(pacer))
	schema := outputSchema(t, svc)

	result := svc.Geocode(context.Background(), models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)}, schema)

	assert.Nil(t, result[5])
	assert.Nil(t, result[6])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pacer.waits)
}

func TestGeoCodeService_PostPrimaryWaitBlocks(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	primary.On("Geocode", mock.Anything, springfield).Return(models.NewCoordinate("39.8", "-89.6"), nil)

	mapping := testMapping()
	mapping.PostNominatimWait = 100 * time.Millisecond
	svc := NewGeoCodeService(mapping, WithPrimary(primary))
	schema := outputSchema(t, svc)

	start := time.Now()
	svc.Geocode(context.Background(), models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)}, schema)

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestGeoCodeService_InterruptedWaitProceeds(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	primary.On("Geocode", mock.Anything, springfield).Return(models.NewCoordinate("39.8", "-89.6"), nil)

	mapping := testMapping()
	mapping.PostNominatimWait = time.Hour
	svc := NewGeoCodeService(mapping, WithPrimary(primary))
	schema := outputSchema(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := svc.Geocode(ctx, models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)}, schema)

	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, "39.8", result[5])
}

func TestGeoCodeService_Idempotent(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	primary.On("Geocode", mock.Anything, springfield).Return(models.NewCoordinate("39.8", "-89.6"), nil).Twice()

	svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithPacer(&recordingPacer{}))
	schema := outputSchema(t, svc)
	in := models.Record{int64(1), "1 Main St", "Springfield", "IL", int64(62701)}

	first := svc.Geocode(context.Background(), in, schema)
	second := svc.Geocode(context.Background(), in, schema)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
	assert.Len(t, in, 5)
	assert.Len(t, first, 7)
	primary.AssertExpectations(t)
}

func TestGeoCodeService_WidensNarrowRecords(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	primary.On("Geocode", mock.Anything, models.AddressQuery{Street: "1 Main St", City: "Springfield", State: "IL"}).
		Return(models.NewCoordinate("39.8", "-89.6"), nil).Once()

	svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithPacer(&recordingPacer{}))
	schema := outputSchema(t, svc)

	// Staged before the zip column existed.
	in := models.Record{int64(3), "1 Main St", "Springfield", "IL"}

	result := svc.Geocode(context.Background(), in, schema)

	want := models.Record{int64(3), "1 Main St", "Springfield", "IL", nil, "39.8", "-89.6"}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Geocode() mismatch (-want +got):\n%s", diff)
	}
}

func TestGeoCodeService_OutputSchema(t *testing.T) {
	tests := []struct {
		name        string
		lat         string
		lon         string
		expectError bool
	}{
		{name: "appends two text fields", lat: "lat", lon: "lon"},
		{name: "blank latitude", lat: " ", lon: "lon", expectError: true},
		{name: "blank longitude", lat: "lat", lon: "", expectError: true},
		{name: "same name", lat: "coord", lon: "coord", expectError: true},
		{name: "collides with input", lat: "zip", lon: "lon", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapping := testMapping()
			mapping.LatitudeField = tt.lat
			mapping.LongitudeField = tt.lon
			svc := NewGeoCodeService(mapping)

			schema, err := svc.OutputSchema(inputSchema)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, schema, len(inputSchema)+2)
			assert.Equal(t, models.Field{Name: "lat", Type: models.FieldTypeString, Origin: StepName}, schema[5])
			assert.Equal(t, models.Field{Name: "lon", Type: models.FieldTypeString, Origin: StepName}, schema[6])
			assert.Len(t, inputSchema, 5)
		})
	}
}

func TestGeoCodeService_Lookup(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	fallback := &MockProvider{name: "mapbox"}
	primary.On("Geocode", mock.Anything, springfield).Return(models.Coordinate{}, nil).Once()
	fallback.On("Geocode", mock.Anything, springfield).Return(models.NewCoordinate("39.78", "-89.65"), nil).Once()

	svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithFallback(fallback), WithPacer(&recordingPacer{}))

	coord := svc.Lookup(context.Background(), springfield)

	require.True(t, coord.Usable())
	assert.Equal(t, "39.78", *coord.Latitude)
	assert.Equal(t, "-89.65", *coord.Longitude)
}

func TestGeoCodeService_LookupIncompleteAddress(t *testing.T) {
	primary := &MockProvider{name: "nominatim"}
	svc := NewGeoCodeService(testMapping(), WithPrimary(primary), WithPacer(&recordingPacer{}))

	coord := svc.Lookup(context.Background(), models.AddressQuery{Street: "1 Main St", City: "  ", State: "IL"})

	assert.False(t, coord.Usable())
	primary.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestGeoCodeService_FallbackOverHTTP(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	var mu sync.Mutex
	var fallbackPath, fallbackToken string

	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primarySrv.Close()

	fallbackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls.Add(1)
		mu.Lock()
		fallbackPath = r.URL.Path
		fallbackToken = r.URL.Query().Get("access_token")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"features":[{"coordinates":[-89.6,39.8]}]}`)
	}))
	defer fallbackSrv.Close()

	mapping := testMapping()
	mapping.NominatimURL = primarySrv.URL + "/search?format=json"
	mapping.MapboxURL = fallbackSrv.URL + "/geocoding/v5/mapbox.places"
	mapping.MapboxKey = "pk.test"
	mapping.PostNominatimWait = 0
	mapping.PostMapboxWait = 0

	hc := provider.NewHTTPClient(5 * time.Second)
	svc := NewGeoCodeService(mapping, WithProvidersFrom(mapping, provider.WithHTTPClient(hc), provider.WithLimiter(provider.NewLimiter(0))))
	schema := outputSchema(t, svc)

	result := svc.Geocode(context.Background(), models.Record{int64(1), "1 Main St", "Springfield", "IL", "62701"}, schema)

	assert.Equal(t, int32(1), primaryCalls.Load())
	assert.Equal(t, int32(1), fallbackCalls.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/geocoding/v5/mapbox.places/1 Main St Springfield IL 62701.json", fallbackPath)
	assert.Equal(t, "pk.test", fallbackToken)
	assert.Equal(t, "39.8", result[5])
	assert.Equal(t, "-89.6", result[6])
}

func TestWithProvidersFrom_DisablesMisconfiguredProviders(t *testing.T) {
	mapping := testMapping()
	mapping.NominatimURL = "http://[::1"
	mapping.MapboxURL = ""

	svc := NewGeoCodeService(mapping, WithProvidersFrom(mapping))

	assert.Nil(t, svc.primary)
	assert.Nil(t, svc.fallback)
}

func TestWithProvidersFrom_FallbackDisabled(t *testing.T) {
	mapping := testMapping()
	mapping.NominatimURL = "https://nominatim.example.org/search"
	mapping.MapboxURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	mapping.MapboxKey = "pk.test"
	mapping.UseMapboxFallback = false

	svc := NewGeoCodeService(mapping, WithProvidersFrom(mapping))

	assert.NotNil(t, svc.primary)
	assert.Nil(t, svc.fallback)
}

func strPtr(s string) *string {
	return &s
}
