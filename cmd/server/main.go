// Package main is the entry point for the sv2midi API server
package main

import (
	"log"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/james-see/sv2midi/internal/config"
	"github.com/james-see/sv2midi/pkg/api"
	"github.com/joho/godotenv"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	flush := api.SetupSentry(cfg, releaseVersion)
	defer flush()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Printf("Starting sv2midi API server on port %s", cfg.Port)
	log.Printf("Swagger docs available at http://localhost:%s/swagger/index.html", cfg.Port)

	if err := api.StartServer(cfg); err != nil {
		sentry.CaptureException(err)
		flush()
		log.Fatal("Failed to start server: ", err)
	}
}
