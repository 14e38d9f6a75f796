package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type payoutRequest struct {
	EntryIDs    []string `json:"entryIds" binding:"required"`
	ActorUserID string   `json:"actorUserId" binding:"required"`
	Confirm     bool     `json:"confirm"`
}

func (s *Server) handlePayoutExecute(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entryIDs, actorID, err := parseEntryBatch(req.EntryIDs, req.ActorUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.payoutSvc.ExecuteApproved(c.Request.Context(), entryIDs, actorID, requestIDFrom(c), req.Confirm)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
