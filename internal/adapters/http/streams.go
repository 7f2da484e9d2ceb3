package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/stream"
)

// handleStreamEvent accepts START/HEARTBEAT/STOP from the publishing agent.
// Success and failure are status-only; there is no substantive body.
func handleStreamEvent(tracker *stream.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev domain.StreamEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if err := ev.Validate(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		owner := domain.Identity(c.GetString("identity"))
		if err := tracker.HandleEvent(c.Request.Context(), ev, owner); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").
				Str("event", string(ev.EventType)).Str("session", ev.StreamSessionID).Msg("stream event failed")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	}
}
