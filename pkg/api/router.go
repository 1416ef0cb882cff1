// Package api exposes ActionDispatcher over HTTP: one POST route
// parameterised by action name plus a Prometheus scrape endpoint, wrapping gin-gonic the way the
// teacher's pkg/api does, generalized from a per-resource REST surface to
// a single dispatch endpoint since every action already carries its own
// name and parameter set.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/dispatcher"
)

// Router holds the Gin engine and an http.Server so Shutdown can drain
// in-flight requests instead of just killing the listener.
type Router struct {
	engine *gin.Engine
	srv    *http.Server
	log    zerolog.Logger
}

// NewRouter builds a Router dispatching every action through d.
func NewRouter(log zerolog.Logger, d *dispatcher.Dispatcher) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	setupMiddleware(engine, log)

	r := &Router{engine: engine, log: log}
	r.setupRoutes(d)

	return r
}

func (r *Router) setupRoutes(d *dispatcher.Dispatcher) {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/actions/:action", r.handleAction(d))
	}
}

// handleAction decodes the request body as the action's params map and
// forwards it to ActionDispatcher.Execute verbatim; Response.Success
// already distinguishes action-level failure from transport-level
// failure, so this handler only needs to translate a malformed request
// body into its own 400 rather than a synthetic dispatcher Response.
func (r *Router) handleAction(d *dispatcher.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := c.Param("action")

		params := map[string]any{}
		if c.Request.ContentLength != 0 {
			if err := json.NewDecoder(c.Request.Body).Decode(&params); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body: " + err.Error()})
				return
			}
		}

		resp := d.Execute(c.Request.Context(), action, params)

		status := http.StatusOK
		if !resp.Success {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, resp)
	}
}

// Run starts the HTTP server on addr and blocks until it stops.
func (r *Router) Run(addr string) error {
	r.srv = &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := r.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (r *Router) Shutdown(ctx context.Context) error {
	if r.srv == nil {
		return nil
	}
	return r.srv.Shutdown(ctx)
}
