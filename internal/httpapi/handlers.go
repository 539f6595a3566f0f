package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/admitdata/gradcafe-etl/internal/job"
	"github.com/admitdata/gradcafe-etl/internal/store"
)

// Analyzer computes the dashboard summary from the persisted entries
type Analyzer interface {
	Summary(ctx context.Context) (*store.Analysis, error)
}

// Handler exposes the coordinator and analysis over HTTP
type Handler struct {
	coord    *job.Coordinator
	analyzer Analyzer
	// syncPull runs the pipeline inline on pull-data, for deterministic
	// testing; production uses the asynchronous mode
	syncPull bool
}

// NewHandler creates the HTTP handler set
func NewHandler(coord *job.Coordinator, analyzer Analyzer, syncPull bool) *Handler {
	return &Handler{coord: coord, analyzer: analyzer, syncPull: syncPull}
}

// PullData triggers an ingestion run. Returns 409 when one is active.
func (h *Handler) PullData(c *gin.Context) {
	mode := job.Asynchronous
	if h.syncPull {
		mode = job.Synchronous
	}

	res := h.coord.Start(c.Request.Context(), mode)
	if res.Busy {
		c.JSON(http.StatusConflict, gin.H{
			"accepted": false,
			"busy":     true,
			"message":  h.coord.Status().Message,
		})
		return
	}

	if mode == job.Synchronous {
		st := h.coord.Status()
		c.JSON(http.StatusOK, gin.H{
			"accepted":    true,
			"busy":        false,
			"message":     st.Message,
			"last_result": st.LastResult,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": true,
		"busy":     false,
		"message":  h.coord.Status().Message,
	})
}

// Status reports the job state snapshot without blocking
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Status())
}

// Clear forces the coordinator back to idle. Admin recovery only.
func (h *Handler) Clear(c *gin.Context) {
	h.coord.Clear()
	c.JSON(http.StatusOK, h.coord.Status())
}

// Analysis serves the summary statistics, refusing while a run is active
func (h *Handler) Analysis(c *gin.Context) {
	if h.coord.Status().Running {
		c.JSON(http.StatusConflict, gin.H{
			"busy":    true,
			"message": "Pull Data is running. Analysis is unavailable until it finishes.",
		})
		return
	}

	summary, err := h.analyzer.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis query failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Health is the liveness probe
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
