package handlers

import (
	"net/http"
	"strings"

	"potion_master/internal/models"

	"github.com/gin-gonic/gin"
)

const operatorCtxKey = "operator"

// operatorMiddleware admits requests carrying a valid operator bearer token
// and stores the operator on the context.
func (h *Handler) operatorMiddleware(c *gin.Context) {
	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	switch {
	case scheme == "":
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return
	case !found || scheme != "Bearer" || strings.TrimSpace(token) == "":
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
		return
	}

	op, err := h.services.ParseToken(strings.TrimSpace(token))
	if err != nil {
		if h.log != nil {
			h.log.Infow("operator_token_rejected", "ip", c.ClientIP(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(operatorCtxKey, op)
	c.Next()
}

// currentOperator returns the operator set by operatorMiddleware.
func currentOperator(c *gin.Context) (models.Operator, bool) {
	v, ok := c.Get(operatorCtxKey)
	if !ok {
		return models.Operator{}, false
	}
	op, ok := v.(models.Operator)
	return op, ok
}
