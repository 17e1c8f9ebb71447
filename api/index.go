package handler

import (
	"net/http"
	"sync"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/handlers"
	"bms-chat-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		// 環境変数はVercelの設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		logger := logging.MustNew(logging.Config{
			Level:   cfg.LogLevel,
			Service: "bms-chat-api",
		})

		gin.SetMode(gin.ReleaseMode)
		app, initErr = handlers.NewRouter(cfg, logger)
		if initErr != nil {
			logger.Error("アプリケーションの初期化に失敗しました", zap.Error(initErr))
			return
		}
		logger.Info("アプリケーションを初期化しました")
	})
	return app, initErr
}

// Handler はVercelのエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	engine.ServeHTTP(w, r)
}
