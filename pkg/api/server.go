// Package api provides the REST API server for sv2midi
package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/james-see/sv2midi/internal/config"
	"github.com/james-see/sv2midi/internal/logger"
	"github.com/james-see/sv2midi/pkg/converter"
	"github.com/james-see/sv2midi/pkg/converter/loaders"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title sv2midi API
// @version 1.0
// @description API for converting annotation projects (Sonic Visualiser, JSON, YAML) to Standard MIDI Files
// @host localhost:8080
// @BasePath /api/v1

// Server serves the conversion API
type Server struct {
	cfg *config.Config
}

// NewServer creates a server with the given configuration
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Router builds the gin engine with all routes and middleware
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(RecoverWithSentry())
	r.Use(SentryMiddleware())
	r.Use(RequestTracking())
	r.Use(corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", s.listFormats)
		v1.GET("/diagnostics/kinds", listDiagnosticKinds)
		v1.POST("/convert", s.handleConvert)
		v1.POST("/convert/report", s.handleConvertReport)
		v1.POST("/inspect", s.handleInspect)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the API server on the configured port
func StartServer(cfg *config.Config) error {
	return NewServer(cfg).Router().Run(":" + cfg.Port)
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sv2midi",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the accepted input formats and the output format
// @Tags info
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/formats [get]
func (s *Server) listFormats(c *gin.Context) {
	conv := converter.New(s.cfg.ConverterOptions(), loaders.All(s.cfg.DefaultBPM, s.cfg.DefaultResolution)...)
	c.JSON(http.StatusOK, gin.H{
		"input":  conv.GetSupportedFormats(),
		"output": converter.FormatMIDI,
	})
}

// listDiagnosticKinds godoc
// @Summary List diagnostic kinds
// @Description Returns every diagnostic kind a conversion can report
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/diagnostics/kinds [get]
func listDiagnosticKinds(c *gin.Context) {
	kinds := make([]string, 0, len(converter.DiagnosticKinds()))
	for _, k := range converter.DiagnosticKinds() {
		kinds = append(kinds, k.String())
	}
	c.JSON(http.StatusOK, gin.H{"kinds": kinds})
}

// handleConvert godoc
// @Summary Convert a project to MIDI
// @Description Upload a project file and receive a Standard MIDI File
// @Tags convert
// @Accept multipart/form-data
// @Produce audio/midi
// @Param file formData file true "Project file (.sv, .json, .yaml)"
// @Param bpm query number false "Tempo for formats without a tempo map (default: 120)"
// @Param resolution query int false "Pulses per quarter note (default: 1024)"
// @Param trim query bool false "Trim leading silence"
// @Param max_polyphony query int false "Polyphony ceiling per layer, negative disables (default: 24)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert [post]
func (s *Server) handleConvert(c *gin.Context) {
	upload, ok := s.readUpload(c)
	if !ok {
		return
	}

	result, ok := s.convert(c, upload)
	if !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", outputName(upload.filename)))
	c.Header("X-Diagnostics-Count", strconv.Itoa(len(result.Diagnostics)))
	c.Data(http.StatusOK, "audio/midi", result.Data)
}

type diagnosticResponse struct {
	converter.Diagnostic
	Message string `json:"message"`
}

type reportResponse struct {
	Filename    string               `json:"filename"`
	Format      converter.Format     `json:"format"`
	Tracks      int                  `json:"tracks"`
	Size        int                  `json:"size"`
	Shift       int64                `json:"shift"`
	Diagnostics []diagnosticResponse `json:"diagnostics"`
	MIDI        string               `json:"midi"`
}

// handleConvertReport godoc
// @Summary Convert a project and report diagnostics
// @Description Upload a project file and receive the diagnostics with the base64 encoded MIDI file
// @Tags convert
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Project file (.sv, .json, .yaml)"
// @Param bpm query number false "Tempo for formats without a tempo map (default: 120)"
// @Param resolution query int false "Pulses per quarter note (default: 1024)"
// @Param trim query bool false "Trim leading silence"
// @Param max_polyphony query int false "Polyphony ceiling per layer, negative disables (default: 24)"
// @Success 200 {object} reportResponse
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert/report [post]
func (s *Server) handleConvertReport(c *gin.Context) {
	upload, ok := s.readUpload(c)
	if !ok {
		return
	}

	result, ok := s.convert(c, upload)
	if !ok {
		return
	}

	diags := make([]diagnosticResponse, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		diags = append(diags, diagnosticResponse{Diagnostic: d, Message: d.Message()})
	}

	c.JSON(http.StatusOK, reportResponse{
		Filename:    outputName(upload.filename),
		Format:      upload.format,
		Tracks:      len(result.Tracks),
		Size:        len(result.Data),
		Shift:       int64(result.Shift),
		Diagnostics: diags,
		MIDI:        base64.StdEncoding.EncodeToString(result.Data),
	})
}

// handleInspect godoc
// @Summary Inspect a MIDI file
// @Description Upload a Standard MIDI File and receive a summary of its tracks and tempo map
// @Tags inspect
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Success 200 {object} converter.FileSummary
// @Failure 400 {object} map[string]string
// @Router /api/v1/inspect [post]
func (s *Server) handleInspect(c *gin.Context) {
	upload, ok := s.readUpload(c)
	if !ok {
		return
	}

	summary, err := converter.Inspect(upload.data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type upload struct {
	filename string
	format   converter.Format
	data     []byte
}

func (s *Server) readUpload(c *gin.Context) (*upload, bool) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, false
	}

	format := converter.DetectFormat(header.Filename)
	if format == converter.FormatUnknown {
		format = converter.DetectFormatFromContent(data)
	}
	return &upload{filename: header.Filename, format: format, data: data}, true
}

func (s *Server) convert(c *gin.Context, u *upload) (*converter.Result, bool) {
	opts := s.cfg.ConverterOptions()
	bpm := s.cfg.DefaultBPM
	resolution := s.cfg.DefaultResolution

	if v := c.Query("bpm"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bpm must be a positive number"})
			return nil, false
		}
		bpm = f
	}
	if v := c.Query("resolution"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolution must be a positive integer"})
			return nil, false
		}
		resolution = n
		opts.Resolution = n
	}
	if v := c.Query("max_polyphony"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_polyphony must be an integer"})
			return nil, false
		}
		opts.MaxPolyphony = n
	}
	opts.TrimLeadingSilence = c.Query("trim") == "true" || c.Query("trim") == "1"

	conv := converter.New(opts, loaders.All(bpm, resolution)...)

	start := time.Now()
	result, err := conv.ConvertData(u.format, u.data)
	if err != nil {
		fields := logger.WithContext(c)
		fields["format"] = string(u.format)
		fields["filename"] = u.filename

		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Conversion failed", err, fields)
		} else {
			logger.Warn("Conversion rejected: "+err.Error(), fields)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}

	counts := make(map[string]int)
	for kind, n := range converter.CountByKind(result.Diagnostics) {
		counts[kind.String()] = n
	}
	logger.LogConversion(string(u.format), time.Since(start), len(result.Tracks), len(result.Data), counts, logger.WithContext(c))

	return result, true
}

func errorStatus(err error) int {
	var verr *converter.ValidationError
	switch {
	case errors.Is(err, converter.ErrNoLoader):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, loaders.ErrMalformedProject), errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func outputName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "converted"
	}
	return base + ".mid"
}
