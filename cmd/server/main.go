package main

import (
	"log"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/handlers"
	"bms-chat-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	logger := logging.MustNew(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "bms-chat-api",
	})
	defer func() { _ = logger.Sync() }()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := handlers.NewRouter(cfg, logger)
	if err != nil {
		logger.Fatal("ルーターの初期化に失敗しました", zap.Error(err))
	}

	logger.Info("サーバーを起動します",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("provider", cfg.DefaultProvider))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
