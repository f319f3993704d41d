package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/utils"
)

type SessionHandler struct {
	svc       services.SessionService
	readiness services.ReadinessService
}

func NewSessionHandler(svc services.SessionService, readiness services.ReadinessService) *SessionHandler {
	return &SessionHandler{svc: svc, readiness: readiness}
}

type CreateSessionRequest struct {
	TopicID string `json:"topic_id" binding:"required"`
}

type SessionResponse struct {
	Session      *models.Session      `json:"session"`
	Participants []models.Participant `json:"participants,omitempty"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Create", "invalid request body", err))
		return
	}

	sess, err := h.svc.Create(c.Request.Context(), userID, req.TopicID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{Session: sess})
}

// Get is the polling fallback for clients that miss a broadcast.
func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if !authorizeMember(c.Request.Context(), c, h.svc, "SessionHandler.Get", sessionID, userID) {
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	ps, err := h.svc.Participants(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{Session: sess, Participants: ps})
}

func (h *SessionHandler) Timer(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if !authorizeMember(c.Request.Context(), c, h.svc, "SessionHandler.Timer", sessionID, userID) {
		return
	}

	t, err := h.svc.Timer(c.Request.Context(), sessionID, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *SessionHandler) Join(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.svc.Join(c.Request.Context(), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Prepare(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	applied, err := h.svc.StartPreparation(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "applied": applied})
}

func (h *SessionHandler) Ready(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.readiness.MarkReady(c.Request.Context(), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if !authorizeMember(c.Request.Context(), c, h.svc, "SessionHandler.End", sessionID, userID) {
		return
	}

	applied, err := h.svc.EndDiscussion(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "applied": applied})
}

// AddSynthetic is called by the AI participant service.
func (h *SessionHandler) AddSynthetic(c *gin.Context) {
	res, err := h.svc.AddSyntheticParticipant(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
