package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stablepay/go-commerce-gateway/internal/dashboard"
)

func dashboardMetrics(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := dashboard.ParseRange(c.Query("range"))
		rep, err := cfg.Dashboard.Build(c.Request.Context(), r)
		if err != nil {
			log.Printf("[handlers] dashboard build (%s): %v", r.Name, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "metrics_unavailable"})
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}
