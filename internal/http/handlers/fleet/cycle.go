package fleethndlr

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Disc0-0/LOmanGUI-Full/internal/fleet"
	"github.com/Disc0-0/LOmanGUI-Full/pkg/jsonx"
)

type restartCycleReq struct {
	Reason string `json:"reason"`
	// WaitSeconds is the settle delay between maintenance and the fleet
	// coming back up.
	WaitSeconds int `json:"wait_seconds"`
}

// RestartCycle kicks off a fleet restart cycle in the background. An empty
// body means an immediate cycle with a generic reason.
func (h *FleetHandler) RestartCycle(c *gin.Context) {
	var req restartCycleReq
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil && !errors.Is(err, jsonx.ErrEmptyBody) {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "Operator requested restart"
	}
	if req.WaitSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wait_seconds must not be negative"})
		return
	}

	err := h.ctl.RestartCycleAsync(req.Reason, time.Duration(req.WaitSeconds)*time.Second)
	if err != nil {
		c.Error(err)
		if errors.Is(err, fleet.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "restart cycle started", "reason": req.Reason})
}
