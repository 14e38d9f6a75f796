package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
)

func (s *Server) handleLedgerList(c *gin.Context) {
	filter := ledgerdomain.ListFilter{
		Status: ledgerdomain.EntryStatus(c.Query("status")),
	}
	if raw := c.Query("deal_id"); raw != "" {
		dealID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.DealID = dealID
	}
	if raw := c.Query("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}

	entries, err := s.ledgerSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type approveRequest struct {
	EntryIDs    []string `json:"entryIds" binding:"required"`
	ActorUserID string   `json:"actorUserId" binding:"required"`
	Confirm     bool     `json:"confirm"`
}

func (s *Server) handleLedgerApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entryIDs, actorID, err := parseEntryBatch(req.EntryIDs, req.ActorUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ledgerSvc.ApproveEntries(c.Request.Context(), entryIDs, actorID, requestIDFrom(c), req.Confirm)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseEntryBatch(rawIDs []string, rawActor string) ([]snowflake.ID, snowflake.ID, error) {
	actorID, err := snowflake.ParseString(rawActor)
	if err != nil {
		return nil, 0, ErrInvalidRequest
	}

	entryIDs := make([]snowflake.ID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, 0, ErrInvalidRequest
		}
		entryIDs = append(entryIDs, id)
	}
	return entryIDs, actorID, nil
}
