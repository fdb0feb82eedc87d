// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/handlers"
	"github.com/amirphl/Amaterasu/app/middleware"
	_ "github.com/amirphl/Amaterasu/docs"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// HealthProbe checks one dependency's reachability
type HealthProbe func(ctx context.Context) error

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	pricingHandler handlers.PricingHandlerInterface
	probes         map[string]HealthProbe
}

// NewFiberRouter creates a new Fiber router. Probes are consulted by the
// health endpoint and may be nil.
func NewFiberRouter(pricingHandler handlers.PricingHandlerInterface, probes map[string]HealthProbe) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Amaterasu Pricing API",
		ServerHeader: "Amaterasu",
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024, // 1MB; pricing payloads are small
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:            app,
		pricingHandler: pricingHandler,
		probes:         probes,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// Prometheus metrics
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API documentation route (development only)
	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "local" {
		api.Get("/docs", r.getAPIDocumentation)
		api.Get("/swagger.json", r.serveSwaggerJSON)
		r.app.Get("/swagger", r.serveSwaggerUI)
		log.Println("API documentation enabled for development")
	}

	// Apply general rate limiting to all API routes
	api.Use(limiter.New(limiter.Config{
		Max:        2000,            // Maximum 2000 requests
		Expiration: 1 * time.Minute, // Per minute
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			// Skip rate limiting for health checks
			return c.Path() == "/api/v1/health"
		},
	}))

	// Pricing endpoints
	pricing := api.Group("/pricing")

	// Batch and calendar endpoints fan out to many calculations; keep their
	// limit tighter than the single-calculation one.
	heavy := limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	})

	pricing.Post("/calculate", r.pricingHandler.CalculatePricing)
	pricing.Post("/batch", r.pricingHandler.CalculateBatch, heavy)
	pricing.Post("/calendar", r.pricingHandler.CalendarPricing, heavy)
	pricing.Post("/calendar/export", r.pricingHandler.DownloadCalendarExcel, heavy)

	pricing.Post("/events", r.pricingHandler.RegisterEvent)
	pricing.Get("/events", r.pricingHandler.ListEvents)
	pricing.Delete("/events/:event_id", r.pricingHandler.RemoveEvent)

	pricing.Get("/cache/stats", r.pricingHandler.GetCacheStats)
	pricing.Post("/cache/cleanup", r.pricingHandler.CleanupExpired)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// SetupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000, // 1 year
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XDNSPrefetchControl:   "off",
		XDownloadOptions:      "noopen",
		XPermittedCrossDomain: "none",
	}))

	// CORS middleware
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-Requested-With",
			"X-Request-ID",
			"Cache-Control",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"X-Response-Time",
		},
		MaxAge: utils.CORSMaxAge,
	}))

	// Compression middleware for performance
	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// Excel downloads are already compressed
			return contains(c.Path(), "/export")
		},
	}))

	// Prometheus metrics middleware
	r.app.Use(middleware.Metrics())

	// Advanced logging middleware
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks and metrics scrapes
			return c.Path() == "/api/v1/health" || c.Path() == "/metrics"
		},
	}))

	// Custom response headers
	r.app.Use(r.responseHeadersMiddleware)

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// responseHeadersMiddleware stamps common response headers
func (r *FiberRouter) responseHeadersMiddleware(c fiber.Ctx) error {
	c.Set("X-Response-Time", utils.UTCNow().Format(time.RFC3339))
	c.Set("Server", "Amaterasu")
	return c.Next()
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint. Reports per-dependency reachability and returns
// 503 when any probe fails.
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	dependencies := fiber.Map{}
	healthy := true
	for name, probe := range r.probes {
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := probe(probeCtx); err != nil {
			dependencies[name] = "unreachable"
			healthy = false
		} else {
			dependencies[name] = "ok"
		}
		cancel()
	}

	status := "ok"
	code := fiber.StatusOK
	if !healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.APIResponse{
		Success: healthy,
		Message: "Service health",
		Data: fiber.Map{
			"status":       status,
			"timestamp":    utils.UTCNow().Unix(),
			"version":      "1.0.0",
			"service":      "amaterasu-pricing-api",
			"dependencies": dependencies,
		},
	})
}

// API documentation endpoint
func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	docs := GetRouteDocumentation()
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       "Amaterasu Pricing API Documentation",
			"version":     "1.0.0",
			"description": "Urgency-based dynamic pricing API",
			"endpoints":   docs,
		},
	})
}

// Serve Swagger UI HTML page
func (r *FiberRouter) serveSwaggerUI(c fiber.Ctx) error {
	htmlContent := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Amaterasu Pricing API - Swagger UI</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
    <style>
        html {
            box-sizing: border-box;
            overflow: -moz-scrollbars-vertical;
            overflow-y: scroll;
        }
        *, *:before, *:after {
            box-sizing: inherit;
        }
        body {
            margin:0;
            background: #fafafa;
        }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-standalone-preset.js"></script>
    <script>
        window.onload = function() {
            const ui = SwaggerUIBundle({
                url: '/api/v1/swagger.json',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIStandalonePreset
                ],
                plugins: [
                    SwaggerUIBundle.plugins.DownloadUrl
                ],
                layout: "StandaloneLayout",
                validatorUrl: null
            });
        };
    </script>
</body>
</html>`

	c.Set("Content-Type", "text/html")
	return c.SendString(htmlContent)
}

// Serve Swagger JSON specification
func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	swaggerData, err := os.ReadFile("docs/swagger.json")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to load Swagger documentation",
			Error: dto.ErrorDetail{
				Code: "SWAGGER_LOAD_ERROR",
			},
		})
	}

	c.Set("Content-Type", "application/json")
	return c.Send(swaggerData)
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Log the error
	log.Printf("Error %d: %v", code, err)

	// Get RequestID for tracing
	requestID := c.Locals("requestid")

	// Return JSON error response
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// Helper functions

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// contains checks if a string contains a substring
func contains(str, substr string) bool {
	return strings.Contains(str, substr)
}

// GetRouteDocumentation returns API documentation
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{
			"method":      "POST",
			"path":        "/api/v1/pricing/calculate",
			"description": "Calculate the urgency-adjusted price for a target date",
			"parameters": map[string]any{
				"target_date":              "string (required) - RFC3339 timestamp or YYYY-MM-DD",
				"base_price":               "number (required) - Base nightly price, 0 < price <= 100000",
				"city":                     "string (optional) - City used for market demand lookup",
				"urgency_steepness":        "number (optional) - Curve steepness, 0 < s <= 5 (default 2.0)",
				"market_demand_multiplier": "number (optional) - Pins the demand multiplier, 0.1 to 10",
				"lookback_window":          "number (optional) - Normalization horizon in days (default 90)",
				"include_projections":      "boolean (optional) - Include future price projections (default true)",
				"current_date":             "string (optional) - Overrides the calculation clock",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/pricing/batch",
			"description": "Calculate pricing for up to 100 requests in one call",
			"parameters": map[string]any{
				"requests": "array (required) - 1 to 100 single calculation requests",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/pricing/calendar",
			"description": "Calculate pricing for up to 90 dates with a shared base price",
			"parameters": map[string]any{
				"base_price": "number (required) - Base nightly price",
				"dates":      "array (required) - 1 to 90 dates in YYYY-MM-DD",
				"city":       "string (optional) - City used for market demand lookup",
				"steepness":  "number (optional) - Curve steepness",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/pricing/calendar/export",
			"description": "Calculate calendar pricing and download it as an Excel workbook",
			"parameters": map[string]any{
				"base_price": "number (required) - Base nightly price",
				"dates":      "array (required) - 1 to 90 dates in YYYY-MM-DD",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/pricing/events",
			"description": "Register a demand-affecting event",
			"parameters": map[string]any{
				"event_name": "string (required) - Event name",
				"start_date": "string (required) - First covered day (YYYY-MM-DD)",
				"end_date":   "string (required) - Last covered day, inclusive (YYYY-MM-DD)",
				"cities":     "array (optional) - City scope; empty means everywhere",
				"multiplier": "number (required) - Demand multiplier, > 0",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/pricing/events",
			"description": "List registered demand-affecting events",
			"parameters":  map[string]any{},
		},
		{
			"method":      "DELETE",
			"path":        "/api/v1/pricing/events/:event_id",
			"description": "Deactivate a registered event",
			"parameters": map[string]any{
				"event_id": "string (required) - Event UUID in URL path",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/pricing/cache/stats",
			"description": "Report pricing cache counters",
			"parameters":  map[string]any{},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/pricing/cache/cleanup",
			"description": "Sweep expired pricing from the cache and storage",
			"parameters":  map[string]any{},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Health check endpoint",
			"parameters":  map[string]any{},
		},
	}
}
