package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ConnectivityChecker reports whether a dependency is reachable.
type ConnectivityChecker func() bool

// HealthController exposes process health: MQTT and store connectivity.
type HealthController struct {
	mqttConnected  ConnectivityChecker
	storeConnected ConnectivityChecker
}

func NewHealthController(mqttConnected, storeConnected ConnectivityChecker) *HealthController {
	return &HealthController{
		mqttConnected:  mqttConnected,
		storeConnected: storeConnected,
	}
}

// RegisterRoutes registers the health route with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.GetHealth)
}

func (c *HealthController) GetHealth(ctx *gin.Context) {
	mqttStatus := "disconnected"
	if c.mqttConnected() {
		mqttStatus = "connected"
	}
	storeStatus := "disconnected"
	if c.storeConnected() {
		storeStatus = "connected"
	}

	status := "healthy"
	code := http.StatusOK
	if mqttStatus != "connected" || storeStatus != "connected" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	ctx.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": gin.H{
			"mqtt":  mqttStatus,
			"mongo": storeStatus,
		},
	})
}
