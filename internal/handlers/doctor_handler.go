package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoar/clinic-api/internal/models"
)

// ListDoctors returns the doctor directory, optionally narrowed with
// ?specialty=.
func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.Accounts.ListDoctors(c.Request.Context(), c.Query("specialty"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if doctors == nil {
		doctors = []*models.DoctorProfile{}
	}
	c.JSON(http.StatusOK, doctors)
}

func (h *Handler) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			h.Log.Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
