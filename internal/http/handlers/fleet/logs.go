package fleethndlr

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Disc0-0/LOmanGUI-Full/internal/fleet"
)

const defaultLogLines = 100

// GetTileLogs returns the newest captured output lines for one tile,
// newest first. ?lines= caps the count.
func (h *FleetHandler) GetTileLogs(c *gin.Context) {
	id, ok := tileID(c)
	if !ok {
		return
	}

	lines := defaultLogLines
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid lines"})
			return
		}
		lines = n
	}

	out, err := h.ctl.TileLogs(id, lines)
	if err != nil {
		c.Error(err)
		if errors.Is(err, fleet.ErrTileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tile_id": id, "lines": out})
}
