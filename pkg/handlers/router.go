package handlers

import (
	"fmt"
	"net/http"
	"time"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/groq"
	"bms-chat-api/pkg/huggingface"
	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/mockdb"
	"bms-chat-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter はサービスを初期化し、すべてのルートを登録したGinエンジンを返します。
// cmd/serverとサーバーレスのエントリーポイントの両方から使われます。
func NewRouter(cfg *config.Config, logger *zap.Logger) (*gin.Engine, error) {
	logger = logging.OrNop(logger)

	prompt, err := config.LoadAssistantPrompt(cfg.AssistantPromptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant prompt: %w", err)
	}

	store := mockdb.Default()
	if cfg.DataSeed != 0 {
		store = mockdb.New(cfg.DataSeed, time.Now())
	}
	logger.Info("モックデータを生成しました",
		zap.Int("items", len(store.Items())),
		zap.Int("orders", store.OrderCount()))

	// サービスの初期化
	routerClient := huggingface.NewClient(huggingface.Options{
		BaseURLs:     cfg.HuggingFaceBaseURLs,
		DefaultModel: cfg.HuggingFaceModel,
		Timeout:      cfg.UpstreamTimeout,
	}, logger)
	groqFactory := groq.NewFactory(cfg.GroqBaseURL, cfg.UpstreamTimeout, logger)

	builder := services.NewContextBuilder(store, prompt)
	responder := services.NewMockResponder(store, cfg.MockLatency)
	chatService := services.NewChatService(builder, responder,
		map[string]services.ChatProvider{
			services.ProviderGroq:        services.NewGroqProvider(groqFactory),
			services.ProviderHuggingFace: services.NewHuggingFaceProvider(routerClient),
		},
		services.ChatServiceOptions{
			DefaultProvider: cfg.DefaultProvider,
			Defaults: map[string]services.ProviderConfig{
				services.ProviderGroq:        {APIKey: cfg.GroqAPIKey, Model: cfg.GroqModel, Endpoint: cfg.GroqBaseURL},
				services.ProviderHuggingFace: {APIKey: cfg.HuggingFaceToken, Model: cfg.HuggingFaceModel},
			},
			Timeout: cfg.UpstreamTimeout,
		}, logger)
	sessionService := services.NewSessionService()
	exporter := services.NewReportExporter(store)
	analysisService := services.NewAnalysisService(store)
	monitoringService := services.NewMonitoringService(logger)

	// ハンドラーの初期化
	proxyHandler := NewProxyHandler(routerClient, logger)
	chatHandler := NewChatHandler(chatService, sessionService, exporter, logger)
	dataHandler := NewDataHandler(store, builder, analysisService, exporter, logger)
	adminHandler := NewAdminHandler(cfg, logger)
	monitoringHandler := NewMonitoringHandler(monitoringService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitoringService.LoggingMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-KEY"}
	corsConfig.OptionsResponseStatusCode = http.StatusOK
	r.Use(cors.New(corsConfig))

	r.GET("/health", adminHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ブラウザ向けのチャットプロキシ。メソッドの判定はハンドラ側で行う
	r.Any("/api/chat", proxyHandler.Handle)

	v1 := r.Group("/api/v1")
	v1.Use(apiKeyMiddleware(cfg.APIKey, logger))
	v1.Use(adminHandler.MaintenanceMiddleware())
	{
		chat := v1.Group("/chat")
		{
			chat.POST("", chatHandler.ChatInput)
			chat.GET("/:sessionID", chatHandler.GetTranscript)
			chat.DELETE("/:sessionID", chatHandler.ClearSession)
			chat.GET("/:sessionID/report/:messageID", chatHandler.GetReport)
			chat.GET("/:sessionID/report/:messageID/xlsx", chatHandler.DownloadReport)
		}

		v1.GET("/catalog", dataHandler.GetCatalog)
		v1.GET("/inventory/:itemID", dataHandler.GetInventory)
		v1.GET("/orders", dataHandler.GetOrders)
		v1.GET("/orders/:orderID", dataHandler.GetOrder)
		v1.GET("/forecast/:itemID", dataHandler.GetForecast)
		v1.GET("/market/:itemID", dataHandler.GetMarketAnalysis)
		v1.GET("/sales/:itemID", dataHandler.GetSalesAnalysis)
		v1.GET("/knowledge", dataHandler.GetKnowledge)
		v1.GET("/context", dataHandler.GetContext)

		reports := v1.Group("/reports")
		{
			reports.GET("/inventory.xlsx", dataHandler.DownloadInventoryReport)
			reports.GET("/sales.xlsx", dataHandler.DownloadSalesReport)
		}

		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	return r, nil
}

// apiKeyMiddleware はAPI_KEYが設定されている場合にX-API-KEYヘッダーを検証します。
func apiKeyMiddleware(apiKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			logger.Warn("無効なAPI Keyです", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
