package api

import (
	"strconv"
	"time"

	"authorship-service/internal/apperr"
	"authorship-service/internal/auth"
	"authorship-service/internal/util"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// authMiddleware verifies the bearer session and stores its claims
func authMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifier.VerifyHeader(c.GetHeader("Authorization"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireAdmin must run after authMiddleware
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := currentClaims(c)
		if claims == nil || !claims.IsAdmin() {
			respondError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}
