package admin

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/ubuygold/ledgerpool/internal/auth"
	"github.com/ubuygold/ledgerpool/internal/config"
)

func SetupRoutes(router *gin.Engine, accounts AccountService, gw Gateway, cfg *config.Config, logger *slog.Logger) {
	handler := NewHandler(accounts, gw, logger)

	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg.Admin.Password))
	{
		accountsGroup := adminGroup.Group("/accounts")
		{
			accountsGroup.GET("", handler.ListAccountsHandler)
			accountsGroup.POST("", handler.CreateAccountHandler)
			accountsGroup.GET("/stats", handler.StatsHandler)
			accountsGroup.GET("/:id", handler.GetAccountHandler)
			accountsGroup.PUT("/:id", handler.UpdateAccountHandler)
			accountsGroup.DELETE("/:id", handler.DeleteAccountHandler)
			accountsGroup.POST("/:id/test", handler.TestAccountHandler)
			accountsGroup.GET("/:id/voices", handler.ListVoicesHandler)
		}

		testGroup := adminGroup.Group("/test")
		{
			testGroup.POST("/transcription", handler.TestTranscriptionHandler)
			testGroup.POST("/tts", handler.TestTTSHandler)
			testGroup.POST("/parse", handler.TestParseHandler)
		}
	}
}
