package fleethndlr

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Disc0-0/LOmanGUI-Full/internal/fleet"
)

func tileID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid tile id"})
		return 0, false
	}
	return id, true
}

func (h *FleetHandler) StartTile(c *gin.Context) {
	id, ok := tileID(c)
	if !ok {
		return
	}
	if err := h.ctl.StartOne(id); err != nil {
		c.Error(err)
		if errors.Is(err, fleet.ErrTileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tile_id": id, "message": "tile starting"})
}

func (h *FleetHandler) StopTile(c *gin.Context) {
	id, ok := tileID(c)
	if !ok {
		return
	}
	if err := h.ctl.StopOne(id); err != nil {
		c.Error(err)
		if errors.Is(err, fleet.ErrTileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tile_id": id, "message": "tile stopped"})
}

func (h *FleetHandler) StartFleet(c *gin.Context) {
	if err := h.ctl.StartAll(); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "fleet starting"})
}

func (h *FleetHandler) StopFleet(c *gin.Context) {
	if err := h.ctl.StopAll(); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "fleet stopped"})
}
