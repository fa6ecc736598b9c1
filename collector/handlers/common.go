package handlers

import (
	"github.com/gin-gonic/gin"

	"fleetwatch/pkg/models"
)

func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func respondError(c *gin.Context, status int, message string, details map[string]string) {
	c.JSON(status, models.ErrorResponse{
		Error:   message,
		Details: details,
	})
}
