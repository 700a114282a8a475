// Package api serves the catalog, import and stock count over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockcount/internal/logger"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 5 * time.Minute
	defaultIdleTimeout  = 120 * time.Second
)

// NewRouter builds the gin engine with middleware and every route installed.
func NewRouter(handler *Handler, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		RecoveryMiddleware(log),
		RequestIDMiddleware(),
		LoggerMiddleware(log),
		MetricsMiddleware(),
		CORSMiddleware(),
	)
	SetupRoutes(router, handler)
	return router
}

// NewServer wraps the router in an http.Server. Imports of large catalogs can
// take minutes, hence the long write timeout.
func NewServer(addr string, handler *Handler, log *logger.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(handler, log),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}
