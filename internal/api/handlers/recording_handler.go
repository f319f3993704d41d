package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/utils"
)

type RecordingHandler struct {
	sessions   services.SessionService
	recordings services.RecordingService
}

func NewRecordingHandler(sessions services.SessionService, recordings services.RecordingService) *RecordingHandler {
	return &RecordingHandler{sessions: sessions, recordings: recordings}
}

type RecordingResultsResponse struct {
	SessionID string               `json:"session_id"`
	Results   []services.ModeResult `json:"results"`
}

// Start starts both modes. Each mode reports its own outcome.
func (h *RecordingHandler) Start(c *gin.Context) {
	sessionID := c.Param("session_id")
	c.JSON(http.StatusOK, RecordingResultsResponse{
		SessionID: sessionID,
		Results:   h.recordings.StartAll(c.Request.Context(), sessionID),
	})
}

// Stop stops one mode when ?mode= is given, otherwise both.
func (h *RecordingHandler) Stop(c *gin.Context) {
	const op = "RecordingHandler.Stop"
	sessionID := c.Param("session_id")

	mode := c.Query("mode")
	if mode == "" {
		c.JSON(http.StatusOK, RecordingResultsResponse{
			SessionID: sessionID,
			Results:   h.recordings.StopAll(c.Request.Context(), sessionID),
		})
		return
	}

	if mode == "mix" {
		mode = string(models.RecordingComposite)
	}
	if _, _, ok := models.RecordingColumns(models.RecordingMode(mode)); !ok {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "mode must be individual or composite", nil))
		return
	}

	res, err := h.recordings.Stop(c.Request.Context(), sessionID, models.RecordingMode(mode))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RecordingResultsResponse{SessionID: sessionID, Results: []services.ModeResult{*res}})
}

func (h *RecordingHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if !authorizeMember(c.Request.Context(), c, h.sessions, "RecordingHandler.List", sessionID, userID) {
		return
	}

	out, err := h.recordings.ListRecordings(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "recordings": out})
}
