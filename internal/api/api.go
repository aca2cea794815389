package api

import (
	"net/http"

	voiceCallHandler "voice-bridge/internal/voicecall/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router           *gin.RouterGroup
	voiceCallHandler voiceCallHandler.Handler
}

func New(router *gin.RouterGroup, voiceCallHandler voiceCallHandler.Handler) API {
	return API{
		router:           router,
		voiceCallHandler: voiceCallHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	{
		phoneGroup := apiGroup.Group("/phone")
		phoneGroup.POST("/incoming", a.voiceCallHandler.HandleIncomingCall)
		phoneGroup.GET("/media-stream", a.voiceCallHandler.HandleMediaStream)
		phoneGroup.POST("/calls", a.voiceCallHandler.HandlePlaceCall)
		phoneGroup.GET("/calls/:call_sid", a.voiceCallHandler.HandleGetCall)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
