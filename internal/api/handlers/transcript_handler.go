package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/utils"
)

type TranscriptHandler struct {
	sessions    services.SessionService
	transcripts services.TranscriptService
}

func NewTranscriptHandler(sessions services.SessionService, transcripts services.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{sessions: sessions, transcripts: transcripts}
}

// SubmitTranscriptRequest leaves presence checks to the service so a missing
// field is reported as MISSING_FIELDS.
type SubmitTranscriptRequest struct {
	Segments []models.TranscriptSegment `json:"segments"`
	StartAt  *time.Time                 `json:"start_at"`
}

type MergedTranscriptResponse struct {
	SessionID string              `json:"session_id"`
	Content   string              `json:"content"`
	Lines     []models.MergedLine `json:"lines"`
	CreatedAt time.Time           `json:"created_at"`
}

func (h *TranscriptHandler) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SubmitTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "TranscriptHandler.Submit", "invalid request body", err))
		return
	}

	res, err := h.transcripts.Submit(c.Request.Context(), services.SubmitInput{
		SessionID: c.Param("session_id"),
		UserID:    userID,
		Segments:  req.Segments,
		StartAt:   req.StartAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TranscriptHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if !authorizeMember(c.Request.Context(), c, h.sessions, "TranscriptHandler.Get", sessionID, userID) {
		return
	}

	mt, err := h.transcripts.GetMerged(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := MergedTranscriptResponse{SessionID: mt.SessionID, Content: mt.Content, CreatedAt: mt.CreatedAt}
	if len(mt.Lines) > 0 {
		if err := json.Unmarshal(mt.Lines, &out.Lines); err != nil {
			writeError(c, utils.E(utils.CodeInternal, "TranscriptHandler.Get", "stored transcript is corrupt", err))
			return
		}
	}
	c.JSON(http.StatusOK, out)
}
