package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/api/handlers"
	"github.com/yoockh/groupspeak/internal/api/middleware"
)

type Deps struct {
	Session    *handlers.SessionHandler
	Transcript *handlers.TranscriptHandler
	Recording  *handlers.RecordingHandler
	Evaluation *handlers.EvaluationHandler
	WS         *handlers.WSHandler

	JWT             middleware.JWTConfig
	InternalKeyHash string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	auth.POST("/sessions", d.Session.Create)
	auth.GET("/sessions/:session_id", d.Session.Get)
	auth.GET("/sessions/:session_id/timer", d.Session.Timer)
	auth.POST("/sessions/:session_id/join", d.Session.Join)
	auth.POST("/sessions/:session_id/prepare", d.Session.Prepare)
	auth.POST("/sessions/:session_id/ready", d.Session.Ready)
	auth.POST("/sessions/:session_id/end", d.Session.End)

	auth.POST("/sessions/:session_id/transcript", d.Transcript.Submit)
	auth.GET("/sessions/:session_id/transcript", d.Transcript.Get)
	auth.GET("/sessions/:session_id/evaluations", d.Evaluation.List)
	auth.GET("/sessions/:session_id/recordings", d.Recording.List)

	// WebSocket
	auth.GET("/ws/session/:session_id", d.WS.SessionWS)

	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuth(d.JWT), middleware.RequireAdmin())
	admin.POST("/sessions/:session_id/evaluate", d.Evaluation.Trigger)

	// Service-to-service triggers
	internal := r.Group("/internal")
	internal.Use(middleware.InternalAPIKey(d.InternalKeyHash))
	internal.POST("/sessions/:session_id/ai-participant", d.Session.AddSynthetic)
	internal.POST("/sessions/:session_id/recording/start", d.Recording.Start)
	internal.POST("/sessions/:session_id/recording/stop", d.Recording.Stop)
	internal.POST("/sessions/:session_id/evaluate", d.Evaluation.Trigger)
}
