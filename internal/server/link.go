package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	linkdomain "github.com/smallbiznis/chatlink/internal/link/domain"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	"go.uber.org/zap"
)

func (s *Server) GenerateLink(c *gin.Context) {
	var req verificationdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	channelID := strings.TrimSpace(req.ChannelID)
	handle := strings.TrimSpace(req.ExternalHandle)
	if channelID == "" {
		AbortWithError(c, newValidationError("channelId", "invalid_channel", "invalid channelId"))
		return
	}
	// externalHandle is optional: opaque-id channels request a nonce before
	// any handle is known, and the handle is attached at finalize time.

	if s.limiter.Enabled() {
		allowed, err := s.limiter.Allow(c.Request.Context(), channelID, handle)
		if err != nil {
			s.log.Warn("nonce issue rate limit check failed", zap.Error(err))
		} else if !allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	resp, err := s.verificationsvc.Create(c.Request.Context(), verificationdomain.CreateRequest{
		ChannelID:      channelID,
		AccountID:      strings.TrimSpace(req.AccountID),
		ExternalHandle: handle,
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ValidateLink(c *gin.Context) {
	var req verificationdomain.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.verificationsvc.Validate(c.Request.Context(), verificationdomain.ValidateRequest{
		Nonce:     strings.TrimSpace(req.Nonce),
		ChannelID: strings.TrimSpace(req.ChannelID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) FinalizeLink(c *gin.Context) {
	var req linkdomain.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.linksvc.Finalize(c.Request.Context(), linkdomain.FinalizeRequest{
		AccountID: strings.TrimSpace(req.AccountID),
		Nonce:     strings.TrimSpace(req.Nonce),
		ChannelID: strings.TrimSpace(req.ChannelID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Protocol failures ride in the result body with a 200; transport errors
	// above are for malformed requests and infrastructure faults only.
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListLinks(c *gin.Context) {
	var query linkdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	query.AccountID = strings.TrimSpace(query.AccountID)

	resp, err := s.linksvc.ListByAccount(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.UserChannels, "page_info": resp.PageInfo})
}

func (s *Server) ListChannels(c *gin.Context) {
	channels, err := s.channelrepo.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": channels})
}
