package fleethndlr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *FleetHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiles": h.ctl.Status()})
}

func (h *FleetHandler) GetNames(c *gin.Context) {
	c.JSON(http.StatusOK, h.names.All())
}
