package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ronin/internal/batch"
	"ronin/internal/centroid"
	"ronin/internal/embedding"
	"ronin/internal/errkind"
	"ronin/internal/feedback"
	"ronin/internal/rewrite"
	"ronin/internal/shared/config"
	"ronin/internal/shared/metrics"
	"ronin/internal/shared/server/middleware"
	"ronin/internal/shared/server/respond"
	"ronin/internal/store"
)

// Dashboard holds the read-mostly HTTP surface spec.md §6 expects alongside
// the CLI: a way for a human to check on the pipeline without a terminal.
type Dashboard struct {
	Store    store.Store
	Batch    *batch.Coordinator
	Centroid *centroid.Engine
	Rewrite  *rewrite.Trigger
	Embedder embedding.Model
}

// NewDashboard wires a Dashboard against an already-open Store.
func NewDashboard(s store.Store, embedder embedding.Model) *Dashboard {
	return &Dashboard{
		Store:    s,
		Batch:    &batch.Coordinator{Store: s},
		Centroid: centroid.NewEngine(s, embedder),
		Rewrite:  rewrite.NewTrigger(s),
		Embedder: embedder,
	}
}

// NewRouter constructs the Gin engine with middleware and dashboard routes registered.
func NewRouter(cfg config.Config, d *Dashboard) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	expensive := middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"expensive": {Rate: 0.2, Burst: 1}, // one /drift recompute every five seconds per client
		},
		DefaultGroup: "expensive",
	})

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/status", d.handleStatus)
	api.GET("/queue", d.handleQueue)
	api.GET("/alerts", d.handleAlerts)
	api.POST("/alerts/:id/ack", d.handleAckAlert)
	api.GET("/drift", expensive, d.handleDrift)

	r.GET("/metrics", metrics.Handler())

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

func (d *Dashboard) handleStatus(c *gin.Context) {
	report, err := feedback.Build(c.Request.Context(), d.Store, feedback.DefaultMinSamples)
	if err != nil {
		writeErr(c, err)
		return
	}
	respond.OK(c, report)
}

func (d *Dashboard) handleQueue(c *gin.Context) {
	view, err := d.Batch.ListQueue(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	respond.OK(c, view)
}

func (d *Dashboard) handleAlerts(c *gin.Context) {
	alerts, err := d.Store.ListUnacknowledgedAlerts(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	respond.OK(c, alerts)
}

func (d *Dashboard) handleAckAlert(c *gin.Context) {
	id := c.Param("id")
	if err := d.Store.AcknowledgeAlert(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	respond.OK(c, gin.H{"acknowledged": true})
}

func (d *Dashboard) handleDrift(c *gin.Context) {
	ctx := c.Request.Context()
	summary, err := d.Centroid.ComputeCentroids(ctx)
	if err != nil {
		writeErr(c, err)
		return
	}
	reports, err := d.Rewrite.Check(ctx)
	if err != nil {
		writeErr(c, err)
		return
	}
	respond.OK(c, gin.H{"summary": summary, "alerts": reports})
}

func writeErr(c *gin.Context, err error) {
	kind := errkind.Of(err)
	status := http.StatusInternalServerError
	switch kind {
	case errkind.Validation, errkind.InvariantViolation:
		status = http.StatusBadRequest
	case errkind.UniqueConflict:
		status = http.StatusConflict
	case errkind.TransientExternal:
		status = http.StatusServiceUnavailable
	case errkind.PermanentExternal:
		status = http.StatusBadGateway
	}
	respond.Error(c, status, string(kind), err.Error(), nil)
}
