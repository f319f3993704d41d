package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/utils"
)

type EvaluationHandler struct {
	sessions    services.SessionService
	evaluations services.EvaluationService
}

func NewEvaluationHandler(sessions services.SessionService, evaluations services.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{sessions: sessions, evaluations: evaluations}
}

// Trigger replays an evaluation synchronously. A session that is already
// scored answers 200 with outcome already_handled.
func (h *EvaluationHandler) Trigger(c *gin.Context) {
	res, err := h.evaluations.Evaluate(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *EvaluationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if !authorizeMember(c.Request.Context(), c, h.sessions, "EvaluationHandler.List", sessionID, userID) {
		return
	}

	rows, err := h.evaluations.Results(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(rows) == 0 {
		writeError(c, utils.E(utils.CodeNotFound, "EvaluationHandler.List", "evaluation not available yet", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "evaluations": rows})
}
