package main

import (
	"geocoding-enricher/internal/config"

	"github.com/gin-gonic/gin"
)

func configureLogger(cfg *config.Config) error {
	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	return config.InitLogger(cfg.Log)
}
