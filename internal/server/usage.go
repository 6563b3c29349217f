package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type incrementUsageRequest struct {
	UserChannelID string `json:"userChannelId"`
	TokensDelta   int64  `json:"tokensDelta"`
	RequestsDelta int64  `json:"requestsDelta"`
}

// IncrementUsage records message traffic against a verified link. Deltas are
// commutative so in-flight requests from multiple workers never clobber each
// other.
func (s *Server) IncrementUsage(c *gin.Context) {
	var req incrementUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.UserChannelID))
	if err != nil {
		AbortWithError(c, newValidationError("userChannelId", "invalid_user_channel", "invalid userChannelId"))
		return
	}
	if req.TokensDelta < 0 || req.RequestsDelta < 0 {
		AbortWithError(c, newValidationError("tokensDelta", "invalid_delta", "deltas must be non-negative"))
		return
	}

	if err := s.usagesvc.Increment(c.Request.Context(), id.Int64(), req.TokensDelta, req.RequestsDelta); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"recorded": true}})
}

func (s *Server) GetUsageLimits(c *gin.Context) {
	accountID := strings.TrimSpace(c.Query("accountId"))
	if accountID == "" {
		AbortWithError(c, newValidationError("accountId", "invalid_account", "invalid accountId"))
		return
	}

	resp, err := s.quotasvc.GetLimitsAndUsage(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUsageSummary(c *gin.Context) {
	accountID := strings.TrimSpace(c.Query("accountId"))
	if accountID == "" {
		AbortWithError(c, newValidationError("accountId", "invalid_account", "invalid accountId"))
		return
	}

	resp, err := s.quotasvc.GetAggregateUsage(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
