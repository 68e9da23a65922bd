package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "geocoding-enricher/docs"
	"geocoding-enricher/internal/config"
	"geocoding-enricher/internal/handler"
	"geocoding-enricher/internal/provider"
	"geocoding-enricher/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// @title			Geocoding Enricher API
// @version		1.0
// @description	Adds latitude and longitude to address records using Nominatim with an optional Mapbox fallback.
// @BasePath		/
func main() {
	config, err := config.LoadConfig("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	if err := configureLogger(config); err != nil {
		log.Fatal().Err(err).Msg("cannot init logger")
	}

	// Initialize layers
	mapping := config.FieldMapping()
	geoCodeService := service.NewGeoCodeService(mapping, service.WithProvidersFrom(mapping,
		provider.WithHTTPClient(provider.NewHTTPClient(config.HTTPTimeout())),
		provider.WithLimiter(provider.NewLimiter(config.Geocoder.MaxRPS)),
	))

	srv := &http.Server{
		Addr:              config.ServerAddress,
		Handler:           newRouter(geoCodeService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func newRouter(svc *service.GeoCodeService) *gin.Engine {
	geoCodeHandler := handler.NewGeoCodeHandler(svc)
	enrichHandler := handler.NewEnrichHandler(svc)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	r.GET("/geocode", geoCodeHandler.GeoCode)
	r.POST("/enrich", enrichHandler.Enrich)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "api: listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "api: shutdown")
		}
		return nil
	})

	return g.Wait()
}
