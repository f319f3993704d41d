package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// AlreadyHandledResponse is what a lost race looks like to the caller.
type AlreadyHandledResponse struct {
	Outcome   string `json:"outcome"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		if ae.Code == utils.CodeAlreadyHandled {
			c.JSON(http.StatusOK, AlreadyHandledResponse{
				Outcome:   "already_handled",
				SessionID: c.Param("session_id"),
				Message:   ae.Message,
			})
			return
		}
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func isAdmin(c *gin.Context) bool {
	v, _ := c.Get("role")
	role, _ := v.(string)
	return role == "admin"
}

// authorizeMember allows the host, any joined participant and admins.
func authorizeMember(ctx context.Context, c *gin.Context, sessions services.SessionService, op, sessionID, userID string) bool {
	if isAdmin(c) {
		return true
	}
	ps, err := sessions.Participants(ctx, sessionID)
	if err != nil {
		writeError(c, err)
		return false
	}
	for _, p := range ps {
		if p.UserID != nil && *p.UserID == userID {
			return true
		}
	}
	writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
	return false
}
