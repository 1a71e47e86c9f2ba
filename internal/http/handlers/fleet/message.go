package fleethndlr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Disc0-0/LOmanGUI-Full/internal/fleet"
	"github.com/Disc0-0/LOmanGUI-Full/pkg/jsonx"
)

type adminMessageReq struct {
	Message string `json:"message"`
	// TileID targets one tile; null or absent broadcasts to all.
	TileID *int `json:"tile_id"`
}

// SendAdminMessage posts an in-game admin message. Delivery spans the display
// window, so the request is accepted and runs in the background.
func (h *FleetHandler) SendAdminMessage(c *gin.Context) {
	var req adminMessageReq
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "message is required"})
		return
	}

	target := -1
	if req.TileID != nil {
		if *req.TileID < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid tile id"})
			return
		}
		target = *req.TileID
	}
	if err := h.ctl.Broadcast(target, req.Message); err != nil {
		c.Error(err)
		if errors.Is(err, fleet.ErrTileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "admin message queued"})
}
